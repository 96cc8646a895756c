package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionStartGame   Action = "startGame"
	ActionRollDice    Action = "rollDice"
	ActionMovePawn    Action = "movePawn"
	ActionSkipTurn    Action = "skipTurn"
	ActionEndGame     Action = "endGame"
	ActionLeaveTable  Action = "leaveTable"
	ActionDiscardGame Action = "discardGame"
)

// Roller draws dice. *rand.Rand satisfies it.
type Roller interface {
	Intn(n int) int
}

// TableState is the persisted form of a GameTable.
type TableState struct {
	ID           string `json:"id"`
	TournamentID string `json:"tournamentId"`
	UserID       string `json:"userId"`

	Action     Action `json:"action"`
	LastAction Action `json:"lastAction,omitempty"`
	Dices      []int  `json:"dices"`
	IsNewTurn  bool   `json:"isNewTurn"`

	Pawns               []Pawn          `json:"pawns"`
	Score               int             `json:"score"`
	Bonus               decimal.Decimal `json:"bonus"`
	RollDiceActionBonus decimal.Decimal `json:"rollDiceActionBonus"`
	RemainingMoves      int             `json:"remainingMoves"`
	Lives               int             `json:"lives"`

	RemainingMovesBonusCredited bool `json:"remainingMovesBonusCredited"`

	Counter             int       `json:"counter"`
	Timeout             time.Time `json:"timeout"`
	LastActionStartTime time.Time `json:"lastActionStartTime"`
	CreatedAt           time.Time `json:"createdAt"`
}

// GameTable is the authoritative state machine of one tournament entry.
// It is owned by a single caller between lock acquire and release.
type GameTable struct {
	TableState
	rules Rules
}

type NewTableParams struct {
	ID           string
	TournamentID string
	UserID       string
	TotalMoves   int
	Ghosts       []Pawn
}

type PawnMove struct {
	PawnID      string   `json:"pawnId"`
	PlayerIndex int      `json:"playerIndex"`
	From        Position `json:"from"`
	To          Position `json:"to"`
	Points      int      `json:"points"`
}

type LegalMove struct {
	PawnID string   `json:"pawnId"`
	Dice   int      `json:"dice"`
	From   Position `json:"from"`
	To     Position `json:"to"`
}

type RollDiceResult struct {
	Dice        int             `json:"dice"`
	Dices       []int           `json:"dices"`
	TurnVoided  bool            `json:"turnVoided"`
	TurnEnded   bool            `json:"turnEnded"`
	SkippedMove *PawnMove       `json:"skippedMove,omitempty"`
	BonusDelta  decimal.Decimal `json:"bonusDelta"`
	Counter     int             `json:"counter"`
}

type MovePawnResult struct {
	Moved        []PawnMove      `json:"moved"`
	Score        int             `json:"score"`
	TotalScore   decimal.Decimal `json:"totalScore"`
	BonusDelta   decimal.Decimal `json:"bonusDelta"`
	GotExtraMove bool            `json:"gotExtraMove"`
	TurnEnded    bool            `json:"turnEnded"`
	Counter      int             `json:"counter"`
}

// NextAction is the client-facing snapshot of what is expected next.
type NextAction struct {
	TableID        string          `json:"tableId"`
	Action         Action          `json:"action"`
	LastAction     Action          `json:"lastAction,omitempty"`
	Dices          []int           `json:"dices"`
	Moves          []LegalMove     `json:"moves,omitempty"`
	Timeout        time.Time       `json:"timeout"`
	Lives          int             `json:"lives"`
	RemainingMoves int             `json:"remainingMoves"`
	IsNewTurn      bool            `json:"isNewTurn"`
	Score          int             `json:"score"`
	Bonus          decimal.Decimal `json:"bonus"`
	Counter        int             `json:"counter"`
}

type TableSnapshot struct {
	NextAction
	TournamentID string          `json:"tournamentId"`
	Pawns        []Pawn          `json:"pawns"`
	TotalScore   decimal.Decimal `json:"totalScore"`
}

func NewGameTable(p NewTableParams, rules Rules, now time.Time) *GameTable {
	pawns := make([]Pawn, 0, PawnsPerPlayer+len(p.Ghosts))
	for i := 0; i < PawnsPerPlayer; i++ {
		pawns = append(pawns, Pawn{PlayerIndex: HumanPlayer, PawnIndex: i, Position: BasePosition(HumanPlayer)})
	}
	pawns = append(pawns, p.Ghosts...)

	return &GameTable{
		TableState: TableState{
			ID:                  p.ID,
			TournamentID:        p.TournamentID,
			UserID:              p.UserID,
			Action:              ActionStartGame,
			Dices:               []int{},
			IsNewTurn:           true,
			Pawns:               pawns,
			Bonus:               decimal.Zero,
			RollDiceActionBonus: decimal.Zero,
			RemainingMoves:      p.TotalMoves,
			Lives:               rules.Lives,
			Timeout:             now.Add(rules.StartDelay),
			LastActionStartTime: now,
			CreatedAt:           now,
		},
		rules: rules,
	}
}

// TableFromState rehydrates a table from its persisted fields. It fails with
// ErrIllegalMove when a pawn has no seat on the board.
func TableFromState(state TableState, rules Rules) (*GameTable, error) {
	if err := ValidatePawns(state.Pawns); err != nil {
		return nil, fmt.Errorf("table %s: %w", state.ID, err)
	}
	if state.Dices == nil {
		state.Dices = []int{}
	}
	return &GameTable{TableState: state, rules: rules}, nil
}

func (t *GameTable) Serialize() ([]byte, error) {
	return json.Marshal(t.TableState)
}

func DeserializeTable(data []byte, rules Rules) (*GameTable, error) {
	var state TableState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	return TableFromState(state, rules)
}

// StartGame leaves the one-time startGame pre-state.
func (t *GameTable) StartGame(now time.Time) error {
	if t.Action != ActionStartGame {
		return fmt.Errorf("%w: start game while %s", ErrInvalidTransition, t.Action)
	}
	t.Action = ActionRollDice
	t.IsNewTurn = true
	t.commit(now, ActionStartGame)
	return nil
}

func (t *GameTable) RollDice(roller Roller, now time.Time) (*RollDiceResult, error) {
	if t.Action != ActionRollDice {
		return nil, fmt.Errorf("%w: roll dice while %s", ErrInvalidTransition, t.Action)
	}

	die := roller.Intn(6) + 1
	t.Dices = append(t.Dices, die)
	t.RollDiceActionBonus = t.RollDiceActionBonus.Add(t.actionTimeBonus(now))

	res := &RollDiceResult{Dice: die, BonusDelta: decimal.Zero}
	switch {
	case t.threeSixes():
		t.Dices = []int{}
		t.RollDiceActionBonus = decimal.Zero
		t.RemainingMoves--
		t.IsNewTurn = true
		res.TurnVoided = true
	case die == 6 && t.rules.ExtraRollOnSix:
		t.IsNewTurn = false
	case len(t.LegalMoves()) == 0:
		res.SkippedMove = t.skippedMove()
		res.BonusDelta = t.resolveTurn()
		res.TurnEnded = true
	default:
		t.Action = ActionMovePawn
		t.IsNewTurn = false
	}

	res.Dices = append([]int(nil), t.Dices...)
	t.commit(now, ActionRollDice)
	res.Counter = t.Counter
	return res, nil
}

func (t *GameTable) MovePawn(pawnID string, dice int, now time.Time) (*MovePawnResult, error) {
	if t.Action != ActionMovePawn {
		return nil, fmt.Errorf("%w: move pawn while %s", ErrInvalidTransition, t.Action)
	}
	di := indexOf(t.Dices, dice)
	if di < 0 {
		return nil, fmt.Errorf("%w: dice %d was not rolled", ErrIllegalMove, dice)
	}
	pi := t.pawnIndex(pawnID)
	if pi < 0 || t.Pawns[pi].PlayerIndex != HumanPlayer {
		return nil, fmt.Errorf("%w: unknown pawn %q", ErrIllegalMove, pawnID)
	}
	mover := &t.Pawns[pi]
	to, err := mover.NextPosition(dice)
	if err != nil {
		return nil, err
	}

	prevBonus := t.Bonus
	from := mover.Position
	mover.Position = to
	extra := false
	var captured []PawnMove

	if to == Home {
		mover.Bonus += t.rules.HomeBonus
		extra = true
	}
	if _, onTrack := to.TrackCell(); onTrack && !to.IsSafe() {
		for i := range t.Pawns {
			other := &t.Pawns[i]
			if other.PlayerIndex == mover.PlayerIndex || other.Position != to {
				continue
			}
			mover.Bonus += other.Points()
			other.Position = BasePosition(other.PlayerIndex)
			other.Bonus = 0
			captured = append(captured, PawnMove{
				PawnID:      other.ID(),
				PlayerIndex: other.PlayerIndex,
				From:        to,
				To:          other.Position,
			})
			extra = true
		}
	}

	res := &MovePawnResult{GotExtraMove: extra}
	res.Moved = append([]PawnMove{{
		PawnID:      mover.ID(),
		PlayerIndex: mover.PlayerIndex,
		From:        from,
		To:          to,
		Points:      mover.Points(),
	}}, captured...)

	if extra {
		t.RemainingMoves++
	}
	t.Dices = append(t.Dices[:di], t.Dices[di+1:]...)
	if len(t.LegalMoves()) == 0 {
		t.resolveTurn()
		res.TurnEnded = true
	}

	t.Score = t.humanPoints()
	t.commit(now, ActionMovePawn)

	res.Score = t.Score
	res.TotalScore = t.FinalScore()
	res.BonusDelta = t.Bonus.Sub(prevBonus)
	res.Counter = t.Counter
	return res, nil
}

// SkipTurn is the forced timeout path.
func (t *GameTable) SkipTurn(now time.Time) error {
	if t.Action != ActionRollDice && t.Action != ActionMovePawn {
		return fmt.Errorf("%w: skip turn while %s", ErrInvalidTransition, t.Action)
	}
	t.Lives--
	t.RemainingMoves--
	t.Dices = []int{}
	t.RollDiceActionBonus = decimal.Zero
	t.Action = ActionRollDice
	t.IsNewTurn = true
	t.commit(now, ActionSkipTurn)
	return nil
}

func (t *GameTable) Leave(now time.Time) error {
	if t.IsClosed() {
		return fmt.Errorf("%w: leave table while %s", ErrInvalidTransition, t.Action)
	}
	t.Action = ActionLeaveTable
	t.Counter++
	t.LastAction = ActionLeaveTable
	t.LastActionStartTime = now
	return nil
}

// End closes the table for scoring. A table already left keeps its leaveTable action.
func (t *GameTable) End(now time.Time) {
	if t.Action != ActionLeaveTable && t.Action != ActionDiscardGame {
		t.Action = ActionEndGame
	}
	t.Counter++
	t.LastActionStartTime = now
}

// Discard marks a table whose tournament was canceled.
func (t *GameTable) Discard() {
	t.Action = ActionDiscardGame
	t.Counter++
}

func (t *GameTable) IsClosed() bool {
	switch t.Action {
	case ActionEndGame, ActionLeaveTable, ActionDiscardGame:
		return true
	}
	return false
}

func (t *GameTable) ShouldEndGame() bool {
	return t.RemainingMoves <= 0 || t.Lives < 0 || t.AllPawnsHome()
}

func (t *GameTable) AllPawnsHome() bool {
	for _, p := range t.Pawns {
		if p.PlayerIndex == HumanPlayer && !p.IsHome() {
			return false
		}
	}
	return true
}

// CreditBonusForRemainingMoves pays unused moves once, when all pawns got home early.
func (t *GameTable) CreditBonusForRemainingMoves() decimal.Decimal {
	if t.RemainingMovesBonusCredited || t.RemainingMoves <= 0 || !t.AllPawnsHome() {
		return decimal.Zero
	}
	amount := t.rules.RemainingMoveBonus.Mul(decimal.NewFromInt(int64(t.RemainingMoves)))
	t.Bonus = t.Bonus.Add(amount)
	t.RemainingMovesBonusCredited = true
	return amount
}

func (t *GameTable) FinalScore() decimal.Decimal {
	return decimal.NewFromInt(int64(t.Score)).Add(t.Bonus)
}

func (t *GameTable) GenerateNextAction() NextAction {
	na := NextAction{
		TableID:        t.ID,
		Action:         t.Action,
		LastAction:     t.LastAction,
		Dices:          append([]int{}, t.Dices...),
		Timeout:        t.Timeout,
		Lives:          t.Lives,
		RemainingMoves: t.RemainingMoves,
		IsNewTurn:      t.IsNewTurn,
		Score:          t.Score,
		Bonus:          t.Bonus,
		Counter:        t.Counter,
	}
	if t.Action == ActionMovePawn {
		na.Moves = t.LegalMoves()
	}
	return na
}

// Snapshot is everything a reconnecting client needs to redraw the board.
func (t *GameTable) Snapshot() TableSnapshot {
	return TableSnapshot{
		NextAction:   t.GenerateNextAction(),
		TournamentID: t.TournamentID,
		Pawns:        append([]Pawn(nil), t.Pawns...),
		TotalScore:   t.FinalScore(),
	}
}

// LegalMoves lists every (pawn, dice) pair the human player may play now.
func (t *GameTable) LegalMoves() []LegalMove {
	var moves []LegalMove
	seen := make(map[int]bool, len(t.Dices))
	for _, d := range t.Dices {
		if seen[d] {
			continue
		}
		seen[d] = true
		for _, p := range t.Pawns {
			if p.PlayerIndex != HumanPlayer {
				continue
			}
			to, err := p.NextPosition(d)
			if err != nil {
				continue
			}
			moves = append(moves, LegalMove{PawnID: p.ID(), Dice: d, From: p.Position, To: to})
		}
	}
	return moves
}

// commit closes a transition: end detection, counter and action clock.
func (t *GameTable) commit(now time.Time, action Action) {
	if t.ShouldEndGame() {
		t.Action = ActionEndGame
	}
	t.Counter++
	t.LastAction = action
	t.LastActionStartTime = now
	t.Timeout = now.Add(t.rules.TurnTimeout)
}

// resolveTurn credits outstanding dice and the accrued action bonus, consumes a move
// and starts a new turn.
func (t *GameTable) resolveTurn() decimal.Decimal {
	sum := 0
	for _, d := range t.Dices {
		sum += d
	}
	delta := decimal.NewFromInt(int64(sum)).Add(t.RollDiceActionBonus)
	t.Bonus = t.Bonus.Add(delta)
	t.Dices = []int{}
	t.RollDiceActionBonus = decimal.Zero
	t.RemainingMoves--
	t.Action = ActionRollDice
	t.IsNewTurn = true
	return delta
}

// actionTimeBonus is ceil(remaining seconds * rate, 2 places), never negative.
func (t *GameTable) actionTimeBonus(now time.Time) decimal.Decimal {
	remaining := t.Timeout.Sub(now)
	if remaining <= 0 {
		return decimal.Zero
	}
	secs := decimal.NewFromInt(remaining.Milliseconds()).Shift(-3)
	return secs.Mul(t.rules.ActionBonusRate).RoundCeil(2)
}

func (t *GameTable) threeSixes() bool {
	n := len(t.Dices)
	if n < 3 {
		return false
	}
	return t.Dices[n-1] == 6 && t.Dices[n-2] == 6 && t.Dices[n-3] == 6
}

// skippedMove reports the first human pawn out on the board, if any.
func (t *GameTable) skippedMove() *PawnMove {
	for _, p := range t.Pawns {
		if p.PlayerIndex != HumanPlayer || p.Position.IsBase() || p.IsHome() {
			continue
		}
		return &PawnMove{
			PawnID:      p.ID(),
			PlayerIndex: p.PlayerIndex,
			From:        p.Position,
			To:          p.Position,
			Points:      p.Points(),
		}
	}
	return nil
}

func (t *GameTable) humanPoints() int {
	total := 0
	for _, p := range t.Pawns {
		if p.PlayerIndex == HumanPlayer {
			total += p.Points()
		}
	}
	return total
}

func (t *GameTable) pawnIndex(id string) int {
	for i, p := range t.Pawns {
		if p.ID() == id {
			return i
		}
	}
	return -1
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
