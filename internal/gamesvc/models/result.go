package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameResult is the recorded outcome of one finished table.
type GameResult struct {
	TournamentID        string          `json:"tournamentId"`
	TableID             string          `json:"tableId"`
	UserID              string          `json:"userId"`
	Score               decimal.Decimal `json:"score"`
	RemainingMovesBonus decimal.Decimal `json:"remainingMovesBonus"`
	Rank                int             `json:"rank"`
	EndReason           Action          `json:"endReason"`
	Pawns               []Pawn          `json:"pawns"`
	FinishedAt          time.Time       `json:"finishedAt"`
}

type Prize struct {
	UserID  string          `json:"userId"`
	TableID string          `json:"tableId"`
	Rank    int             `json:"rank"`
	Amount  decimal.Decimal `json:"amount"`
}
