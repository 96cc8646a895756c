package service

import (
	"context"
	"sync"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	log "github.com/sirupsen/logrus"
)

type TaskKind string

const (
	TaskStartGame  TaskKind = "startGame"
	TaskSkipTurn   TaskKind = "skipTurn"
	TaskEndGame    TaskKind = "endGame"
	TaskNextAction TaskKind = "nextAction"
)

// Task fires against a table only if the table has not reached TargetCounter yet.
type Task struct {
	TableID       string
	Kind          TaskKind
	TargetCounter int
	// Attempt counts reschedules of a failed endGame task.
	Attempt int
}

func (t Task) stale(table *models.GameTable) bool {
	return table.Counter >= t.TargetCounter
}

type TimeoutHandler interface {
	OnTimeout(ctx context.Context, task Task) error
}

// AfterFunc runs f once d has elapsed. time.AfterFunc in production.
type AfterFunc func(d time.Duration, f func())

func realAfter(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Timer schedules fire-and-forget callbacks. Scheduled tasks cannot be
// canceled; staleness is checked by the handler once it holds the table lock.
type Timer struct {
	handler TimeoutHandler
	after   AfterFunc
	timeout time.Duration

	mu      sync.Mutex
	stopped bool
	running sync.WaitGroup
}

func NewTimer(handler TimeoutHandler, after AfterFunc, timeout time.Duration) *Timer {
	if after == nil {
		after = realAfter
	}
	return &Timer{handler: handler, after: after, timeout: timeout}
}

func (t *Timer) Schedule(task Task, delay time.Duration) {
	t.after(delay, func() {
		if !t.enter() {
			return
		}
		defer t.running.Done()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.handler.OnTimeout(ctx, task); err != nil {
			log.WithFields(log.Fields{
				"tableId": task.TableID,
				"kind":    task.Kind,
				"target":  task.TargetCounter,
				"attempt": task.Attempt,
			}).Errorf("timer task failed: %s", err)
		}
	})
}

func (t *Timer) enter() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.running.Add(1)
	return true
}

// Stop drops tasks that have not fired yet and waits for the running ones.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.running.Wait()
}
