package models

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Players        = 4
	PawnsPerPlayer = 4
	TrackCells     = 52
	HomePathCells  = 5
	HumanPlayer    = 0

	// cells a pawn walks on the shared track before entering its home path
	trackSteps = TrackCells - 1
)

// Position is a board cell: "B<p>" base, "T<n>" shared track, "H<p>-<n>" home path, "HOME".
type Position string

const Home Position = "HOME"

var safeCells = map[int]bool{0: true, 8: true, 13: true, 21: true, 26: true, 34: true, 39: true, 47: true}

var (
	paths     [Players][]Position
	pathIndex [Players]map[Position]int
)

func init() {
	for p := 0; p < Players; p++ {
		path := make([]Position, 0, 1+trackSteps+HomePathCells+1)
		path = append(path, BasePosition(p))
		for i := 0; i < trackSteps; i++ {
			path = append(path, TrackPosition(startCell(p)+i))
		}
		for i := 1; i <= HomePathCells; i++ {
			path = append(path, HomePathPosition(p, i))
		}
		path = append(path, Home)

		idx := make(map[Position]int, len(path))
		for i, pos := range path {
			idx[pos] = i
		}
		paths[p] = path
		pathIndex[p] = idx
	}
}

func startCell(player int) int {
	return player * TrackCells / Players
}

func BasePosition(player int) Position {
	return Position(fmt.Sprintf("B%d", player))
}

func TrackPosition(cell int) Position {
	return Position(fmt.Sprintf("T%d", ((cell%TrackCells)+TrackCells)%TrackCells))
}

func HomePathPosition(player, step int) Position {
	return Position(fmt.Sprintf("H%d-%d", player, step))
}

func validPlayer(player int) bool {
	return player >= 0 && player < Players
}

// Path returns a copy of the fixed path for a player, nil for an unknown seat.
func Path(player int) []Position {
	if !validPlayer(player) {
		return nil
	}
	return append([]Position(nil), paths[player]...)
}

func (p Position) IsBase() bool {
	return strings.HasPrefix(string(p), "B")
}

func (p Position) IsHomePath() bool {
	return strings.HasPrefix(string(p), "H") && p != Home
}

// TrackCell reports the shared-track cell number, if the position is on the track.
func (p Position) TrackCell() (int, bool) {
	if !strings.HasPrefix(string(p), "T") {
		return 0, false
	}
	n, err := strconv.Atoi(string(p[1:]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsSafe is true for track cells where pawns cannot be captured.
func (p Position) IsSafe() bool {
	cell, ok := p.TrackCell()
	return ok && safeCells[cell]
}
