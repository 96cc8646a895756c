package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TournamentStatus string

const (
	StatusLive      TournamentStatus = "live"
	StatusFull      TournamentStatus = "full"
	StatusClosed    TournamentStatus = "closed"
	StatusCanceled  TournamentStatus = "canceled"
	StatusCompleted TournamentStatus = "completed"
)

// PrizeTier pays Amount to every rank in [FromRank, ToRank].
type PrizeTier struct {
	FromRank int             `json:"fromRank"`
	ToRank   int             `json:"toRank"`
	Amount   decimal.Decimal `json:"amount"`
}

type Tournament struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	JoinFee              decimal.Decimal  `json:"joinFee"`
	Status               TournamentStatus `json:"status"`
	EndAt                time.Time        `json:"endAt"`
	Duration             time.Duration    `json:"duration"`
	MaxTotalEntries      int              `json:"maxTotalEntries"`
	MaxEntriesPerUser    int              `json:"maxEntriesPerUser"`
	EnteredUserCount     int              `json:"enteredUserCount"`
	ExtensionTime        time.Duration    `json:"extensionTime"`
	MaxExtensionLimit    int              `json:"maxExtensionLimit"`
	ExtendedCount        int              `json:"extendedCount"`
	WinningPrizes        []PrizeTier      `json:"winningPrizes"`
	TotalPrize           decimal.Decimal  `json:"totalPrize"`
	TotalMoves           int              `json:"totalMoves"`
	UseSamePawnPositions bool             `json:"useSamePawnPositions"`
	PawnPositions        []Pawn           `json:"pawnPositions,omitempty"`
	IsRepeatable         bool             `json:"isRepeatable"`
	CreatedAt            time.Time        `json:"createdAt"`
}

// CheckIfJoinable is the admission check for one more entry of a user.
func (t *Tournament) CheckIfJoinable(userEntryCount int) error {
	if t.Status != StatusLive {
		return fmt.Errorf("%w: tournament %s is %s", ErrNotJoinable, t.ID, t.Status)
	}
	if t.IsFull() {
		return fmt.Errorf("%w: tournament %s has %d/%d entries", ErrCapacityExceeded, t.ID, t.EnteredUserCount, t.MaxTotalEntries)
	}
	if userEntryCount >= t.MaxEntriesPerUser {
		return fmt.Errorf("%w: user reached %d entries", ErrNotJoinable, t.MaxEntriesPerUser)
	}
	return nil
}

func (t *Tournament) IsFull() bool {
	return t.EnteredUserCount >= t.MaxTotalEntries
}

func (t *Tournament) CanExtend() bool {
	return t.Status == StatusLive && t.ExtendedCount < t.MaxExtensionLimit
}

func (t *Tournament) Extend() {
	t.EndAt = t.EndAt.Add(t.ExtensionTime)
	t.ExtendedCount++
}

func (t *Tournament) CanFinalize() bool {
	return t.Status == StatusFull || t.Status == StatusClosed
}

func (t *Tournament) CanCancel() bool {
	return t.Status == StatusLive || t.Status == StatusClosed
}

// Successor is the next instance of a repeatable tournament.
func (t *Tournament) Successor(now time.Time) *Tournament {
	next := *t
	next.ID = ""
	next.Status = StatusLive
	next.EnteredUserCount = 0
	next.ExtendedCount = 0
	next.TotalPrize = decimal.Zero
	next.PawnPositions = nil
	next.WinningPrizes = append([]PrizeTier(nil), t.WinningPrizes...)
	next.EndAt = now.Add(t.Duration)
	next.CreatedAt = now
	return &next
}

func (t *Tournament) PrizeForRank(rank int) decimal.Decimal {
	for _, tier := range t.WinningPrizes {
		if rank >= tier.FromRank && rank <= tier.ToRank {
			return tier.Amount
		}
	}
	return decimal.Zero
}

// ComputePrizes ranks a leaderboard (best first) and keeps the paid places.
func (t *Tournament) ComputePrizes(leaderboard []GameResult) []Prize {
	var prizes []Prize
	for i, r := range leaderboard {
		rank := i + 1
		amount := t.PrizeForRank(rank)
		if !amount.IsPositive() {
			continue
		}
		prizes = append(prizes, Prize{UserID: r.UserID, TableID: r.TableID, Rank: rank, Amount: amount})
	}
	return prizes
}
