package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker down")
	}
	p.got = append(p.got, e)
	return nil
}

func (p *recordingPublisher) events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.got...)
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue(16, 3, time.Millisecond)
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, pub)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Emit(context.Background(), Event{Type: NextAction, TableID: "t1", Payload: i}))
	}

	assert.Eventually(t, func() bool { return len(pub.events()) == 10 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for i, e := range pub.events() {
		assert.Equal(t, i, e.Payload)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestQueueRetriesThenDelivers(t *testing.T) {
	q := NewQueue(4, 3, time.Millisecond)
	pub := &recordingPublisher{failures: 2}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, pub)

	require.NoError(t, q.Emit(ctx, Event{Type: EndGame, TableID: "t1"}))

	assert.Eventually(t, func() bool { return len(pub.events()) == 1 }, time.Second, 5*time.Millisecond)
	pub.mu.Lock()
	assert.Equal(t, 3, pub.calls)
	pub.mu.Unlock()
}

func TestQueueDropsAfterAttempts(t *testing.T) {
	q := NewQueue(4, 2, time.Millisecond)
	pub := &recordingPublisher{failures: 2}

	q.publish(context.Background(), pub, Event{Type: EndGame})
	assert.Empty(t, pub.events())
	assert.Equal(t, 2, pub.calls)
}

func TestQueueFlushesOnShutdown(t *testing.T) {
	q := NewQueue(4, 1, time.Millisecond)
	pub := &recordingPublisher{}
	require.NoError(t, q.Emit(context.Background(), Event{Type: NextAction}))
	require.NoError(t, q.Emit(context.Background(), Event{Type: EndGame}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx, pub)

	assert.Len(t, pub.events(), 2)
}

func TestEmitRespectsContextWhenFull(t *testing.T) {
	q := NewQueue(1, 1, time.Millisecond)
	require.NoError(t, q.Emit(context.Background(), Event{Type: NextAction}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Emit(ctx, Event{Type: NextAction})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
