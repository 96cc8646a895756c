package models

import "fmt"

type Pawn struct {
	PlayerIndex int      `json:"playerIndex"`
	PawnIndex   int      `json:"pawnIndex"`
	Position    Position `json:"position"`
	Bonus       int      `json:"bonus"`
}

func (p Pawn) ID() string {
	return fmt.Sprintf("%d-%d", p.PlayerIndex, p.PawnIndex)
}

// PathIndex is -1 for a pawn off its path or of an unknown seat.
func (p Pawn) PathIndex() int {
	if !validPlayer(p.PlayerIndex) {
		return -1
	}
	idx, ok := pathIndex[p.PlayerIndex][p.Position]
	if !ok {
		return -1
	}
	return idx
}

func (p Pawn) IsHome() bool {
	return p.Position == Home
}

// NextPosition returns the cell reached with the given dice or ErrIllegalMove.
func (p Pawn) NextPosition(dice int) (Position, error) {
	if dice < 1 || dice > 6 {
		return "", fmt.Errorf("%w: dice %d out of range", ErrIllegalMove, dice)
	}
	if !validPlayer(p.PlayerIndex) {
		return "", fmt.Errorf("%w: pawn %s has no seat", ErrIllegalMove, p.ID())
	}
	if p.IsHome() {
		return "", fmt.Errorf("%w: pawn %s already home", ErrIllegalMove, p.ID())
	}
	path := paths[p.PlayerIndex]
	idx := p.PathIndex()
	if idx < 0 {
		return "", fmt.Errorf("%w: pawn %s is off its path at %s", ErrIllegalMove, p.ID(), p.Position)
	}
	if idx == 0 {
		if dice != 1 && dice != 6 {
			return "", fmt.Errorf("%w: pawn %s needs 1 or 6 to leave base", ErrIllegalMove, p.ID())
		}
		return path[1], nil
	}
	if idx+dice >= len(path) {
		return "", fmt.Errorf("%w: pawn %s overshoots home with %d", ErrIllegalMove, p.ID(), dice)
	}
	return path[idx+dice], nil
}

// Points is the distance travelled on the pawn's own path plus its bonus.
func (p Pawn) Points() int {
	pts := p.PathIndex() - 1 + p.Bonus
	if pts < 0 {
		return 0
	}
	return pts
}

// RandomInitialPosition picks a shared-track cell on the pawn's path that is
// neither safe nor excluded.
func (p Pawn) RandomInitialPosition(rng Roller, exclude map[Position]bool) (Position, error) {
	if !validPlayer(p.PlayerIndex) {
		return "", fmt.Errorf("%w: pawn %s has no seat", ErrIllegalMove, p.ID())
	}
	free := make([]Position, 0, TrackCells)
	for _, pos := range paths[p.PlayerIndex] {
		if _, onTrack := pos.TrackCell(); !onTrack || pos.IsSafe() || exclude[pos] {
			continue
		}
		free = append(free, pos)
	}
	if len(free) == 0 {
		return "", fmt.Errorf("no free track cell left")
	}
	return free[rng.Intn(len(free))], nil
}

// ValidatePawns rejects pawns that belong to no seat or stand off their path.
func ValidatePawns(pawns []Pawn) error {
	for _, p := range pawns {
		if !validPlayer(p.PlayerIndex) {
			return fmt.Errorf("%w: pawn %s has no seat", ErrIllegalMove, p.ID())
		}
		if p.PawnIndex < 0 || p.PawnIndex >= PawnsPerPlayer {
			return fmt.Errorf("%w: pawn %s out of range", ErrIllegalMove, p.ID())
		}
		if p.PathIndex() < 0 {
			return fmt.Errorf("%w: pawn %s is off its path at %s", ErrIllegalMove, p.ID(), p.Position)
		}
	}
	return nil
}

// GhostPawns seeds the pawns of the non-human seats on random free track cells.
func GhostPawns(rng Roller) ([]Pawn, error) {
	taken := make(map[Position]bool)
	var pawns []Pawn
	for player := 0; player < Players; player++ {
		if player == HumanPlayer {
			continue
		}
		for i := 0; i < PawnsPerPlayer; i++ {
			pawn := Pawn{PlayerIndex: player, PawnIndex: i}
			pos, err := pawn.RandomInitialPosition(rng, taken)
			if err != nil {
				return nil, err
			}
			taken[pos] = true
			pawn.Position = pos
			pawns = append(pawns, pawn)
		}
	}
	return pawns, nil
}
