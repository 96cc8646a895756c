package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveTournament() *Tournament {
	return &Tournament{
		ID:                "tour-1",
		JoinFee:           decimal.NewFromInt(10),
		Status:            StatusLive,
		EndAt:             t0.Add(time.Hour),
		Duration:          time.Hour,
		MaxTotalEntries:   3,
		MaxEntriesPerUser: 2,
		ExtensionTime:     10 * time.Minute,
		MaxExtensionLimit: 2,
		TotalMoves:        25,
		IsRepeatable:      true,
		WinningPrizes: []PrizeTier{
			{FromRank: 1, ToRank: 1, Amount: decimal.NewFromInt(50)},
			{FromRank: 2, ToRank: 3, Amount: decimal.NewFromInt(10)},
		},
	}
}

func TestCheckIfJoinable(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Tournament)
		entries int
		wantErr error
	}{
		{"open", func(*Tournament) {}, 0, nil},
		{"second entry", func(*Tournament) {}, 1, nil},
		{"per user cap", func(*Tournament) {}, 2, ErrNotJoinable},
		{"closed", func(tr *Tournament) { tr.Status = StatusClosed }, 0, ErrNotJoinable},
		{"full status", func(tr *Tournament) { tr.Status = StatusFull }, 0, ErrNotJoinable},
		{"capacity", func(tr *Tournament) { tr.EnteredUserCount = 3 }, 0, ErrCapacityExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := liveTournament()
			tt.mutate(tr)
			err := tr.CheckIfJoinable(tt.entries)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAdmissionNeverPastCapacity(t *testing.T) {
	tr := liveTournament()
	for entered := tr.MaxTotalEntries; entered < tr.MaxTotalEntries+5; entered++ {
		tr.EnteredUserCount = entered
		for userEntries := 0; userEntries < 5; userEntries++ {
			assert.Error(t, tr.CheckIfJoinable(userEntries))
		}
	}
}

func TestExtend(t *testing.T) {
	tr := liveTournament()
	end := tr.EndAt

	require.True(t, tr.CanExtend())
	tr.Extend()
	tr.Extend()
	assert.Equal(t, end.Add(20*time.Minute), tr.EndAt)
	assert.False(t, tr.CanExtend())

	tr = liveTournament()
	tr.Status = StatusFull
	assert.False(t, tr.CanExtend())
}

func TestStatusGuards(t *testing.T) {
	tr := liveTournament()
	assert.False(t, tr.CanFinalize())
	assert.True(t, tr.CanCancel())

	tr.Status = StatusClosed
	assert.True(t, tr.CanFinalize())
	assert.True(t, tr.CanCancel())

	tr.Status = StatusFull
	assert.True(t, tr.CanFinalize())
	assert.False(t, tr.CanCancel())

	tr.Status = StatusCompleted
	assert.False(t, tr.CanFinalize())
	assert.False(t, tr.CanCancel())
}

func TestSuccessor(t *testing.T) {
	tr := liveTournament()
	tr.Status = StatusFull
	tr.EnteredUserCount = 3
	tr.ExtendedCount = 1
	tr.PawnPositions = []Pawn{{PlayerIndex: 1, Position: TrackPosition(3)}}

	now := t0.Add(2 * time.Hour)
	next := tr.Successor(now)

	assert.Empty(t, next.ID)
	assert.Equal(t, StatusLive, next.Status)
	assert.Zero(t, next.EnteredUserCount)
	assert.Zero(t, next.ExtendedCount)
	assert.Nil(t, next.PawnPositions)
	assert.Equal(t, now.Add(time.Hour), next.EndAt)
	assert.Equal(t, tr.WinningPrizes, next.WinningPrizes)
	assert.Equal(t, StatusFull, tr.Status)
}

func TestComputePrizes(t *testing.T) {
	tr := liveTournament()
	board := []GameResult{
		{UserID: "a", TableID: "t1"},
		{UserID: "b", TableID: "t2"},
		{UserID: "a", TableID: "t3"},
		{UserID: "c", TableID: "t4"},
	}

	prizes := tr.ComputePrizes(board)
	require.Len(t, prizes, 3)
	assert.Equal(t, Prize{UserID: "a", TableID: "t1", Rank: 1, Amount: decimal.NewFromInt(50)}, prizes[0])
	assert.Equal(t, 3, prizes[2].Rank)
	assert.Equal(t, "t3", prizes[2].TableID)
}
