package service

import (
	"context"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/events"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/shopspring/decimal"
)

// TableStore keeps serialized tables and the per-user active table index.
type TableStore interface {
	// Get returns models.ErrNotFound when the table is gone.
	Get(ctx context.Context, tableID string) ([]byte, error)
	// Put indexes the table under userID unless userID is empty.
	Put(ctx context.Context, tableID string, state []byte, userID string) error
	Delete(ctx context.Context, tableID, userID string) error
	// ActiveTableID returns "" when the user has no live table.
	ActiveTableID(ctx context.Context, userID string) (string, error)
	// ListIDs returns every stored table, for rearming timers after a restart.
	ListIDs(ctx context.Context) ([]string, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

type TournamentStore interface {
	Get(ctx context.Context, id string) (*models.Tournament, error)
	UserEntryCount(ctx context.Context, tournamentID, userID string) (int, error)
	// AddEntry records a paid entry and returns the new entered count.
	AddEntry(ctx context.Context, tournamentID, userID, tableID string) (int, error)
	// RemoveEntry drops the entry of a table that never started.
	RemoveEntry(ctx context.Context, tournamentID, tableID string) error
	SavePawnPositions(ctx context.Context, tournamentID string, pawns []models.Pawn) error
	UpdateStatus(ctx context.Context, id string, status models.TournamentStatus) error
	Extend(ctx context.Context, id string, endAt time.Time, extendedCount int) error
	Create(ctx context.Context, t *models.Tournament) (string, error)
	Complete(ctx context.Context, id string, totalPrize decimal.Decimal) error
	EntrantUserIDs(ctx context.Context, id string) ([]string, error)
	// DueForClose lists live tournaments whose endAt has passed.
	DueForClose(ctx context.Context, now time.Time) ([]string, error)
}

type ResultStore interface {
	// Record is idempotent per table.
	Record(ctx context.Context, r models.GameResult) error
	// Rank is 1 + the number of results in the tournament scoring higher.
	Rank(ctx context.Context, tournamentID string, score decimal.Decimal) (int, error)
	Count(ctx context.Context, tournamentID string) (int, error)
	// Leaderboard is sorted best first, ties broken by who finished earlier.
	Leaderboard(ctx context.Context, tournamentID string) ([]models.GameResult, error)
	ByTable(ctx context.Context, tableID string) (*models.GameResult, error)
	LatestForUser(ctx context.Context, tournamentID, userID string) (*models.GameResult, error)
}

type Wallet interface {
	DebitJoinFee(ctx context.Context, userID string, amount decimal.Decimal, tournamentID string, entryNo int) error
	CreditPrizes(ctx context.Context, tournamentID string, prizes []models.Prize) error
	RefundJoinFees(ctx context.Context, tournamentID string) error
}

type Notifier interface {
	PushToUsers(ctx context.Context, userIDs []string, title, body, deepLink string) error
}

type EventSink interface {
	Emit(ctx context.Context, e events.Event) error
}
