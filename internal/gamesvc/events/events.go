package events

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type Type string

const (
	NextAction          Type = "nextAction"
	MovePawnResult      Type = "movePawnResult"
	EndGame             Type = "endGame"
	RemainingMovesBonus Type = "remainingMovesBonus"
	TournamentCanceled  Type = "tournamentCanceled"
)

// Event is addressed to one user; the transport routes it to that user's sockets.
type Event struct {
	Type         Type      `json:"type"`
	UserID       string    `json:"userId"`
	TableID      string    `json:"tableId,omitempty"`
	TournamentID string    `json:"tournamentId,omitempty"`
	Payload      any       `json:"payload"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Queue hands events to a single consumer so they leave in emission order.
type Queue struct {
	ch       chan Event
	attempts int
	backoff  time.Duration
}

func NewQueue(size, attempts int, backoff time.Duration) *Queue {
	if attempts < 1 {
		attempts = 1
	}
	return &Queue{
		ch:       make(chan Event, size),
		attempts: attempts,
		backoff:  backoff,
	}
}

// Emit blocks while the buffer is full.
func (q *Queue) Emit(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run publishes until ctx is done, then flushes whatever is still buffered.
func (q *Queue) Run(ctx context.Context, pub Publisher) {
	for {
		select {
		case e := <-q.ch:
			q.publish(ctx, pub, e)
		case <-ctx.Done():
			q.flush(pub)
			return
		}
	}
}

func (q *Queue) flush(pub Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-q.ch:
			q.publish(ctx, pub, e)
		default:
			return
		}
	}
}

func (q *Queue) publish(ctx context.Context, pub Publisher, e Event) {
	var err error
	for attempt := 1; attempt <= q.attempts; attempt++ {
		if err = pub.Publish(ctx, e); err == nil {
			return
		}
		if attempt == q.attempts {
			break
		}
		select {
		case <-time.After(q.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			// keep trying on shutdown, the flush has its own deadline
		}
	}
	log.WithFields(log.Fields{
		"type":    e.Type,
		"tableId": e.TableID,
		"userId":  e.UserID,
	}).Errorf("dropping event after %d attempts: %s", q.attempts, err)
}
