package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathLayout(t *testing.T) {
	for p := 0; p < Players; p++ {
		path := Path(p)
		require.Len(t, path, 58)
		assert.Equal(t, BasePosition(p), path[0])
		assert.Equal(t, TrackPosition(13*p), path[1])
		assert.Equal(t, HomePathPosition(p, 1), path[52])
		assert.Equal(t, Home, path[57])
	}
	assert.Equal(t, TrackPosition(11), Path(1)[51])
}

func TestNextPositionFromBase(t *testing.T) {
	for p := 0; p < Players; p++ {
		pawn := Pawn{PlayerIndex: p, Position: BasePosition(p)}
		for dice := 1; dice <= 6; dice++ {
			pos, err := pawn.NextPosition(dice)
			if dice == 1 || dice == 6 {
				require.NoError(t, err)
				assert.Equal(t, Path(p)[1], pos)
				continue
			}
			assert.ErrorIs(t, err, ErrIllegalMove, "player %d dice %d", p, dice)
		}
	}
}

func TestNextPositionHomePath(t *testing.T) {
	pawn := Pawn{PlayerIndex: 0, Position: HomePathPosition(0, 3)}

	_, err := pawn.NextPosition(4)
	assert.ErrorIs(t, err, ErrIllegalMove)

	pos, err := pawn.NextPosition(3)
	require.NoError(t, err)
	assert.Equal(t, Home, pos)

	pos, err = pawn.NextPosition(1)
	require.NoError(t, err)
	assert.Equal(t, HomePathPosition(0, 4), pos)
}

func TestNextPositionFromHome(t *testing.T) {
	pawn := Pawn{PlayerIndex: 2, Position: Home}
	_, err := pawn.NextPosition(1)
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestNextPositionWrapsTrack(t *testing.T) {
	pawn := Pawn{PlayerIndex: 1, Position: TrackPosition(50)}
	pos, err := pawn.NextPosition(4)
	require.NoError(t, err)
	assert.Equal(t, TrackPosition(2), pos)

	// last track cell of player 1 leads into its home path
	pawn.Position = TrackPosition(11)
	pos, err = pawn.NextPosition(1)
	require.NoError(t, err)
	assert.Equal(t, HomePathPosition(1, 1), pos)
}

func TestPoints(t *testing.T) {
	tests := []struct {
		name string
		pawn Pawn
		want int
	}{
		{"base", Pawn{PlayerIndex: 0, Position: BasePosition(0)}, 0},
		{"start cell", Pawn{PlayerIndex: 0, Position: TrackPosition(0)}, 0},
		{"track with bonus", Pawn{PlayerIndex: 0, Position: TrackPosition(10), Bonus: 5}, 15},
		{"other player track", Pawn{PlayerIndex: 1, Position: TrackPosition(5)}, 44},
		{"home", Pawn{PlayerIndex: 3, Position: Home, Bonus: 10}, 66},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pawn.Points())
		})
	}
}

func TestPawnWithoutSeat(t *testing.T) {
	for _, player := range []int{-1, Players, 99} {
		pawn := Pawn{PlayerIndex: player, Position: TrackPosition(3)}

		assert.Equal(t, -1, pawn.PathIndex())
		assert.Zero(t, pawn.Points())
		_, err := pawn.NextPosition(1)
		assert.ErrorIs(t, err, ErrIllegalMove)
		_, err = pawn.RandomInitialPosition(rand.New(rand.NewSource(1)), nil)
		assert.ErrorIs(t, err, ErrIllegalMove)
		assert.Nil(t, Path(player))
	}
}

func TestValidatePawns(t *testing.T) {
	tests := []struct {
		name  string
		pawns []Pawn
		ok    bool
	}{
		{"seeded board", []Pawn{{PlayerIndex: 0, Position: BasePosition(0)}, {PlayerIndex: 1, PawnIndex: 3, Position: Home}}, true},
		{"negative seat", []Pawn{{PlayerIndex: -1, Position: TrackPosition(3)}}, false},
		{"seat past the board", []Pawn{{PlayerIndex: Players, Position: TrackPosition(3)}}, false},
		{"pawn index", []Pawn{{PlayerIndex: 1, PawnIndex: PawnsPerPlayer, Position: TrackPosition(20)}}, false},
		{"other player's base", []Pawn{{PlayerIndex: 1, Position: BasePosition(2)}}, false},
		// the cell behind player 1's start is not on its path
		{"cell behind start", []Pawn{{PlayerIndex: 1, Position: TrackPosition(12)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePawns(tt.pawns)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrIllegalMove)
		})
	}
}

func TestRandomInitialPosition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	exclude := map[Position]bool{TrackPosition(5): true, TrackPosition(6): true}
	pawn := Pawn{PlayerIndex: 2}

	for i := 0; i < 500; i++ {
		pos, err := pawn.RandomInitialPosition(rng, exclude)
		require.NoError(t, err)
		assert.False(t, pos.IsSafe(), "picked safe cell %s", pos)
		assert.False(t, exclude[pos], "picked excluded cell %s", pos)
		pawn.Position = pos
		assert.Positive(t, pawn.PathIndex())
	}
}

func TestGhostPawns(t *testing.T) {
	ghosts, err := GhostPawns(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, ghosts, (Players-1)*PawnsPerPlayer)

	seen := make(map[Position]bool)
	for _, g := range ghosts {
		assert.NotEqual(t, HumanPlayer, g.PlayerIndex)
		assert.False(t, seen[g.Position], "two ghosts on %s", g.Position)
		seen[g.Position] = true
	}
}
