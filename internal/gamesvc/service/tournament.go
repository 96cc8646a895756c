package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/events"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type LifecycleDeps struct {
	Tournaments TournamentStore
	Results     ResultStore
	Wallet      Wallet
	Notifier    Notifier
	Sink        EventSink
	Locker      Locker
}

// Lifecycle moves tournaments through live, full/closed, completed and canceled.
// Capacity changes hold the "<id>-join" lock, finalization holds "<id>".
type Lifecycle struct {
	tournaments TournamentStore
	results     ResultStore
	wallet      Wallet
	notifier    Notifier
	sink        EventSink
	locker      Locker

	lockWait time.Duration
	now      func() time.Time
	// deep link opened from push notifications, %s is the tournament id
	deepLink string
}

func NewLifecycle(d LifecycleDeps, lockWait time.Duration, deepLink string, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		tournaments: d.Tournaments,
		results:     d.Results,
		wallet:      d.Wallet,
		notifier:    d.Notifier,
		sink:        d.Sink,
		locker:      d.Locker,
		lockWait:    lockWait,
		now:         now,
		deepLink:    deepLink,
	}
}

// HandleFullTournament runs under the join lock right after the last entry was taken.
func (l *Lifecycle) HandleFullTournament(ctx context.Context, t *models.Tournament) error {
	if err := l.tournaments.UpdateStatus(ctx, t.ID, models.StatusFull); err != nil {
		return fmt.Errorf("mark full: %w", err)
	}
	t.Status = models.StatusFull
	log.WithField("tournamentId", t.ID).Infof("tournament full with %d entries", t.EnteredUserCount)

	if !t.IsRepeatable {
		return nil
	}
	next := t.Successor(l.now())
	id, err := l.tournaments.Create(ctx, next)
	if err != nil {
		return fmt.Errorf("create successor: %w", err)
	}
	log.WithField("tournamentId", t.ID).Infof("successor tournament %s ends at %s", id, next.EndAt.Format(time.RFC3339))
	return nil
}

// CloseTournament is fired at endAt. A live tournament is extended while it may be,
// otherwise closed.
func (l *Lifecycle) CloseTournament(ctx context.Context, id string) error {
	closed := false
	err := withLocks(ctx, l.locker, l.lockWait, []string{id, id + "-join"}, func(ctx context.Context) error {
		t, err := l.tournaments.Get(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != models.StatusLive {
			return nil
		}

		if t.CanExtend() {
			t.Extend()
			if err := l.tournaments.Extend(ctx, id, t.EndAt, t.ExtendedCount); err != nil {
				return fmt.Errorf("extend: %w", err)
			}
			log.WithField("tournamentId", id).Infof("extended to %s (%d/%d)", t.EndAt.Format(time.RFC3339), t.ExtendedCount, t.MaxExtensionLimit)
			return nil
		}

		if err := l.tournaments.UpdateStatus(ctx, id, models.StatusClosed); err != nil {
			return fmt.Errorf("mark closed: %w", err)
		}
		closed = true
		log.WithField("tournamentId", id).Info("tournament closed")
		return nil
	})
	if err != nil || !closed {
		return err
	}
	return l.FinalizeIfAllGamesCompleted(ctx, id)
}

// FinalizeIfAllGamesCompleted pays out and completes a full or closed tournament
// once every entry has a recorded result. Prize credit is best-effort.
func (l *Lifecycle) FinalizeIfAllGamesCompleted(ctx context.Context, id string) error {
	var winners []models.Prize
	var name string
	err := withLocks(ctx, l.locker, l.lockWait, []string{id}, func(ctx context.Context) error {
		t, err := l.tournaments.Get(ctx, id)
		if err != nil {
			return err
		}
		if !t.CanFinalize() {
			return nil
		}
		finished, err := l.results.Count(ctx, id)
		if err != nil {
			return err
		}
		if finished < t.EnteredUserCount {
			return nil
		}

		board, err := l.results.Leaderboard(ctx, id)
		if err != nil {
			return err
		}
		prizes := t.ComputePrizes(board)
		total := decimal.Zero
		for _, p := range prizes {
			total = total.Add(p.Amount)
		}
		if len(prizes) > 0 {
			if err := l.wallet.CreditPrizes(ctx, id, prizes); err != nil {
				log.WithField("tournamentId", id).Errorf("credit prizes: %s", err)
			}
		}

		if err := l.tournaments.Complete(ctx, id, total); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		log.WithField("tournamentId", id).Infof("tournament completed, %d winners share %s", len(prizes), total.StringFixed(2))

		winners, name = prizes, t.Name
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range winners {
		body := fmt.Sprintf("You finished #%d in %s and won %s", p.Rank, name, p.Amount.StringFixed(2))
		l.push(ctx, []string{p.UserID}, "Tournament results", body, id)
	}
	return nil
}

// CancelTournament refunds every entry before the tournament is marked canceled,
// so a failed refund leaves it cancelable again.
func (l *Lifecycle) CancelTournament(ctx context.Context, id string) error {
	var users []string
	var name string
	err := withLocks(ctx, l.locker, l.lockWait, []string{id, id + "-join"}, func(ctx context.Context) error {
		t, err := l.tournaments.Get(ctx, id)
		if err != nil {
			return err
		}
		if !t.CanCancel() {
			return fmt.Errorf("%w: cancel tournament while %s", models.ErrInvalidTransition, t.Status)
		}

		if err := l.wallet.RefundJoinFees(ctx, id); err != nil {
			return fmt.Errorf("%w: refund join fees: %v", models.ErrDownstream, err)
		}
		if err := l.tournaments.UpdateStatus(ctx, id, models.StatusCanceled); err != nil {
			return fmt.Errorf("mark canceled: %w", err)
		}

		users, err = l.tournaments.EntrantUserIDs(ctx, id)
		if err != nil {
			log.WithField("tournamentId", id).Errorf("list entrants: %s", err)
		}
		name = t.Name
		return nil
	})
	if err != nil {
		return err
	}

	log.WithField("tournamentId", id).Infof("tournament canceled, %d users refunded", len(users))
	for _, u := range users {
		err := l.sink.Emit(ctx, events.Event{
			Type:         events.TournamentCanceled,
			UserID:       u,
			TournamentID: id,
			Payload:      map[string]string{"tournamentId": id, "name": name},
		})
		if err != nil {
			log.WithField("tournamentId", id).Warnf("emit cancel to %s: %s", u, err)
		}
	}
	l.push(ctx, users, "Tournament canceled", fmt.Sprintf("%s was canceled, your join fee has been refunded", name), id)
	return nil
}

func (l *Lifecycle) push(ctx context.Context, users []string, title, body, tournamentID string) {
	if len(users) == 0 {
		return
	}
	link := ""
	if l.deepLink != "" {
		link = fmt.Sprintf(l.deepLink, tournamentID)
	}
	if err := l.notifier.PushToUsers(ctx, users, title, body, link); err != nil {
		log.WithField("tournamentId", tournamentID).Warnf("push notification: %s", err)
	}
}
