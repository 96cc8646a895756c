package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rules are the tunables a table is played with. They are not persisted with the table.
type Rules struct {
	TurnTimeout time.Duration
	StartDelay  time.Duration
	Lives       int
	HomeBonus   int

	// bonus credited per second left on the action clock when the dice is rolled
	ActionBonusRate decimal.Decimal
	// bonus per unused move when all pawns reach home early
	RemainingMoveBonus decimal.Decimal
	ExtraRollOnSix     bool
}

func DefaultRules() Rules {
	return Rules{
		TurnTimeout:        10 * time.Second,
		StartDelay:         3 * time.Second,
		Lives:              3,
		HomeBonus:          10,
		ActionBonusRate:    decimal.RequireFromString("0.1"),
		RemainingMoveBonus: decimal.NewFromInt(5),
		ExtraRollOnSix:     true,
	}
}
