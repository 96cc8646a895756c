package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/events"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// errStale marks a timer task that a player action already overtook.
var errStale = errors.New("stale task")

type Options struct {
	Rules models.Rules

	// give the client time to animate before the next prompt or the result
	NextActionDelay time.Duration
	EndGameDelay    time.Duration

	LockWait    time.Duration
	TaskTimeout time.Duration

	// a failed endGame task is retried EndGameRetries times, RetryDelay apart
	RetryDelay     time.Duration
	EndGameRetries int

	After AfterFunc
	// Roller draws dice and ghost seats; must be safe for concurrent use.
	Roller models.Roller
	Now    func() time.Time
}

type Deps struct {
	Tables      TableStore
	Locker      Locker
	Tournaments TournamentStore
	Results     ResultStore
	Wallet      Wallet
	Sink        EventSink
	Lifecycle   *Lifecycle
}

// Orchestrator runs every table mutation as lock, load, mutate, persist, emit, release.
type Orchestrator struct {
	tables      TableStore
	locker      Locker
	tournaments TournamentStore
	results     ResultStore
	wallet      Wallet
	sink        EventSink
	lifecycle   *Lifecycle
	timer       *Timer

	opts Options
	dice models.Roller
	now  func() time.Time
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func NewOrchestrator(d Deps, opts Options) *Orchestrator {
	if opts.Roller == nil {
		opts.Roller = &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TaskTimeout == 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.EndGameRetries == 0 {
		opts.EndGameRetries = 5
	}

	o := &Orchestrator{
		tables:      d.Tables,
		locker:      d.Locker,
		tournaments: d.Tournaments,
		results:     d.Results,
		wallet:      d.Wallet,
		sink:        d.Sink,
		lifecycle:   d.Lifecycle,
		opts:        opts,
		dice:        opts.Roller,
		now:         opts.Now,
	}
	o.timer = NewTimer(o, opts.After, opts.TaskTimeout)
	return o
}

// Stop drops pending timers and waits for running ones.
func (o *Orchestrator) Stop() {
	o.timer.Stop()
}

func (o *Orchestrator) JoinTournament(ctx context.Context, userID, tournamentID string) (*models.NextAction, error) {
	var table *models.GameTable
	err := o.withLocks(ctx, []string{tournamentID + "-join", userID}, func(ctx context.Context) error {
		tour, err := o.tournaments.Get(ctx, tournamentID)
		if err != nil {
			return err
		}
		active, err := o.tables.ActiveTableID(ctx, userID)
		if err != nil {
			return err
		}
		if active != "" {
			return fmt.Errorf("%w: user %s is still playing table %s", models.ErrNotJoinable, userID, active)
		}
		entries, err := o.tournaments.UserEntryCount(ctx, tournamentID, userID)
		if err != nil {
			return err
		}
		if err := tour.CheckIfJoinable(entries); err != nil {
			return err
		}

		ghosts, err := o.ghostPawns(ctx, tour)
		if err != nil {
			return err
		}

		if err := o.wallet.DebitJoinFee(ctx, userID, tour.JoinFee, tournamentID, entries+1); err != nil {
			if errors.Is(err, models.ErrInsufficientBalance) {
				return err
			}
			return fmt.Errorf("%w: debit join fee: %v", models.ErrDownstream, err)
		}

		table = models.NewGameTable(models.NewTableParams{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			UserID:       userID,
			TotalMoves:   tour.TotalMoves,
			Ghosts:       ghosts,
		}, o.opts.Rules, o.now())

		// The entry goes in before the table so that no table without an entry
		// is ever played or scored. A retry re-debits under the same ledger ref.
		entered, err := o.tournaments.AddEntry(ctx, tournamentID, userID, table.ID)
		if err != nil {
			return fmt.Errorf("%w: record entry: %v", models.ErrDownstream, err)
		}
		if err := o.save(ctx, table); err != nil {
			o.revokeEntry(ctx, table)
			return err
		}
		tour.EnteredUserCount = entered
		if tour.IsFull() {
			if err := o.lifecycle.HandleFullTournament(ctx, tour); err != nil {
				log.WithField("tournamentId", tournamentID).Errorf("handle full tournament: %s", err)
			}
		}

		o.timer.Schedule(Task{TableID: table.ID, Kind: TaskStartGame, TargetCounter: table.Counter + 1}, o.opts.Rules.StartDelay)
		o.emit(ctx, events.NextAction, table, table.GenerateNextAction())
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tournamentId": tournamentID,
		"userId":       userID,
		"tableId":      table.ID,
	}).Info("user joined tournament")

	na := table.GenerateNextAction()
	return &na, nil
}

// revokeEntry undoes a join whose table could not be stored.
func (o *Orchestrator) revokeEntry(ctx context.Context, table *models.GameTable) {
	logger := log.WithFields(log.Fields{"tournamentId": table.TournamentID, "tableId": table.ID})
	if err := o.tournaments.RemoveEntry(ctx, table.TournamentID, table.ID); err != nil {
		logger.Errorf("remove entry: %s", err)
	}
	if err := o.tables.Delete(ctx, table.ID, table.UserID); err != nil {
		logger.Warnf("delete unsaved table: %s", err)
	}
}

// ghostPawns seeds the opponent seats. Tournaments playing the same board reuse
// the first entrant's seeding.
func (o *Orchestrator) ghostPawns(ctx context.Context, tour *models.Tournament) ([]models.Pawn, error) {
	if tour.UseSamePawnPositions && len(tour.PawnPositions) > 0 {
		if err := models.ValidatePawns(tour.PawnPositions); err != nil {
			return nil, fmt.Errorf("tournament %s board: %w", tour.ID, err)
		}
		return append([]models.Pawn(nil), tour.PawnPositions...), nil
	}

	ghosts, err := models.GhostPawns(o.dice)
	if err != nil {
		return nil, err
	}
	if tour.UseSamePawnPositions {
		if err := o.tournaments.SavePawnPositions(ctx, tour.ID, ghosts); err != nil {
			return nil, fmt.Errorf("save pawn positions: %w", err)
		}
	}
	return ghosts, nil
}

func (o *Orchestrator) RollDice(ctx context.Context, userID, tableID string) (*models.RollDiceResult, error) {
	var res *models.RollDiceResult
	err := o.withLocks(ctx, []string{tableID, userID}, func(ctx context.Context) error {
		table, err := o.loadOwned(ctx, tableID, userID)
		if err != nil {
			return err
		}
		res, err = table.RollDice(o.dice, o.now())
		if err != nil {
			return err
		}
		if err := o.save(ctx, table); err != nil {
			return err
		}
		o.afterAction(ctx, table, false)
		return nil
	})
	return res, err
}

func (o *Orchestrator) MovePawn(ctx context.Context, userID, tableID, pawnID string, dice int) (*models.MovePawnResult, error) {
	var res *models.MovePawnResult
	err := o.withLocks(ctx, []string{tableID, userID}, func(ctx context.Context) error {
		table, err := o.loadOwned(ctx, tableID, userID)
		if err != nil {
			return err
		}
		res, err = table.MovePawn(pawnID, dice, o.now())
		if err != nil {
			return err
		}
		if err := o.save(ctx, table); err != nil {
			return err
		}
		o.emit(ctx, events.MovePawnResult, table, res)
		o.afterAction(ctx, table, false)
		return nil
	})
	return res, err
}

// SkipTurn is the turn timeout. It does nothing once the table moved past targetCounter.
func (o *Orchestrator) SkipTurn(ctx context.Context, tableID string, targetCounter int) error {
	task := Task{TableID: tableID, Kind: TaskSkipTurn, TargetCounter: targetCounter}
	return o.timed(ctx, task, func(ctx context.Context, table *models.GameTable) error {
		if err := table.SkipTurn(o.now()); err != nil {
			return err
		}
		if err := o.save(ctx, table); err != nil {
			return err
		}
		log.WithFields(log.Fields{"tableId": tableID, "lives": table.Lives}).Info("turn skipped")
		o.afterAction(ctx, table, true)
		return nil
	})
}

// EndGame ends a table now, whatever its state.
func (o *Orchestrator) EndGame(ctx context.Context, tableID string) error {
	return o.finish(ctx, []string{tableID}, tableID, func(*models.GameTable) error { return nil })
}

func (o *Orchestrator) LeaveTable(ctx context.Context, userID, tableID string) error {
	return o.finish(ctx, []string{tableID, userID}, tableID, func(table *models.GameTable) error {
		if table.UserID != userID {
			return fmt.Errorf("%w: table %s", models.ErrNotFound, tableID)
		}
		return table.Leave(o.now())
	})
}

func (o *Orchestrator) OnTimeout(ctx context.Context, task Task) error {
	switch task.Kind {
	case TaskStartGame:
		return o.timed(ctx, task, func(ctx context.Context, table *models.GameTable) error {
			if err := table.StartGame(o.now()); err != nil {
				return err
			}
			if err := o.save(ctx, table); err != nil {
				return err
			}
			o.afterAction(ctx, table, true)
			return nil
		})
	case TaskSkipTurn:
		return o.SkipTurn(ctx, task.TableID, task.TargetCounter)
	case TaskNextAction:
		return o.timed(ctx, task, func(ctx context.Context, table *models.GameTable) error {
			o.emit(ctx, events.NextAction, table, table.GenerateNextAction())
			return nil
		})
	case TaskEndGame:
		err := o.finish(ctx, []string{task.TableID}, task.TableID, func(table *models.GameTable) error {
			if task.stale(table) {
				return errStale
			}
			return nil
		})
		err = ignoreGone(task, err)
		if err != nil && task.Attempt < o.opts.EndGameRetries {
			// the table is still stored in endGame, so the retry is not stale
			retry := task
			retry.Attempt++
			o.timer.Schedule(retry, o.opts.RetryDelay)
			return fmt.Errorf("end game, retry %d scheduled: %w", retry.Attempt, err)
		}
		return err
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}

// timed runs fn on the task's table under its lock unless the table is gone
// or has already moved on.
func (o *Orchestrator) timed(ctx context.Context, task Task, fn func(context.Context, *models.GameTable) error) error {
	err := o.withLocks(ctx, []string{task.TableID}, func(ctx context.Context) error {
		table, err := o.load(ctx, task.TableID)
		if err != nil {
			return err
		}
		if task.stale(table) {
			return errStale
		}
		return fn(ctx, table)
	})
	return ignoreGone(task, err)
}

func ignoreGone(task Task, err error) error {
	if errors.Is(err, errStale) || errors.Is(err, models.ErrNotFound) {
		log.WithFields(log.Fields{
			"tableId": task.TableID,
			"kind":    task.Kind,
			"target":  task.TargetCounter,
		}).Debugf("timer task skipped: %s", err)
		return nil
	}
	return err
}

// afterAction arms the timers following a committed transition.
func (o *Orchestrator) afterAction(ctx context.Context, table *models.GameTable, promptNow bool) {
	next := table.Counter + 1
	if table.Action == models.ActionEndGame {
		o.timer.Schedule(Task{TableID: table.ID, Kind: TaskEndGame, TargetCounter: next}, o.opts.EndGameDelay)
		return
	}

	o.timer.Schedule(Task{TableID: table.ID, Kind: TaskSkipTurn, TargetCounter: next}, o.opts.Rules.TurnTimeout)
	if promptNow {
		o.emit(ctx, events.NextAction, table, table.GenerateNextAction())
		return
	}
	o.timer.Schedule(Task{TableID: table.ID, Kind: TaskNextAction, TargetCounter: next}, o.opts.NextActionDelay)
}

// Recover rearms the timers of every stored table, for use at startup since
// pending timers die with the process. Overdue tasks fire at once. Duplicate
// tasks from several instances are dropped by the counter check.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	ids, err := o.tables.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tables: %w", err)
	}

	rearmed := 0
	for _, id := range ids {
		table, err := o.load(ctx, id)
		if err != nil {
			// expired or finished since the scan
			if !errors.Is(err, models.ErrNotFound) {
				log.WithField("tableId", id).Errorf("recover table: %s", err)
			}
			continue
		}
		if o.rearm(ctx, table) {
			rearmed++
		}
	}
	log.Infof("rearmed timers of %d/%d tables", rearmed, len(ids))
	return rearmed, nil
}

func (o *Orchestrator) rearm(ctx context.Context, table *models.GameTable) bool {
	next := table.Counter + 1
	due := table.Timeout.Sub(o.now())
	if due < 0 {
		due = 0
	}

	switch table.Action {
	case models.ActionStartGame:
		o.timer.Schedule(Task{TableID: table.ID, Kind: TaskStartGame, TargetCounter: next}, due)
	case models.ActionRollDice, models.ActionMovePawn:
		o.timer.Schedule(Task{TableID: table.ID, Kind: TaskSkipTurn, TargetCounter: next}, due)
		o.emit(ctx, events.NextAction, table, table.GenerateNextAction())
	case models.ActionEndGame, models.ActionLeaveTable, models.ActionDiscardGame:
		o.timer.Schedule(Task{TableID: table.ID, Kind: TaskEndGame, TargetCounter: next}, 0)
	default:
		log.WithFields(log.Fields{"tableId": table.ID, "action": table.Action}).Warn("no timer for table action")
		return false
	}
	return true
}

// finish scores and tears down a table, then checks whether its tournament can be finalized.
func (o *Orchestrator) finish(ctx context.Context, keys []string, tableID string, prepare func(*models.GameTable) error) error {
	var result *models.GameResult
	err := o.withLocks(ctx, keys, func(ctx context.Context) error {
		table, err := o.load(ctx, tableID)
		if err != nil {
			return err
		}
		if err := prepare(table); err != nil {
			return err
		}

		now := o.now()
		bonus := table.CreditBonusForRemainingMoves()
		table.End(now)

		tour, err := o.tournaments.Get(ctx, table.TournamentID)
		if err != nil {
			return err
		}
		if tour.Status == models.StatusCanceled {
			table.Discard()
			log.WithField("tableId", tableID).Info("discarding table of canceled tournament")
			return o.tables.Delete(ctx, table.ID, table.UserID)
		}

		result, err = o.record(ctx, table, bonus, now)
		if err != nil {
			return err
		}
		if err := o.tables.Delete(ctx, table.ID, table.UserID); err != nil {
			return fmt.Errorf("delete table: %w", err)
		}

		if bonus.IsPositive() {
			o.emit(ctx, events.RemainingMovesBonus, table, map[string]any{
				"tableId":        table.ID,
				"remainingMoves": table.RemainingMoves,
				"bonus":          bonus,
			})
		}
		o.emit(ctx, events.EndGame, table, result)
		return nil
	})
	if err != nil || result == nil {
		return err
	}

	log.WithFields(log.Fields{
		"tableId": tableID,
		"score":   result.Score.String(),
		"rank":    result.Rank,
		"reason":  result.EndReason,
	}).Info("game ended")

	// table lock is released before the tournament lock is taken
	if err := o.lifecycle.FinalizeIfAllGamesCompleted(ctx, result.TournamentID); err != nil {
		log.WithField("tournamentId", result.TournamentID).Errorf("finalize tournament: %s", err)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, table *models.GameTable, bonus decimal.Decimal, now time.Time) (*models.GameResult, error) {
	r := models.GameResult{
		TournamentID:        table.TournamentID,
		TableID:             table.ID,
		UserID:              table.UserID,
		Score:               table.FinalScore(),
		RemainingMovesBonus: bonus,
		EndReason:           table.Action,
		Pawns:               table.Pawns,
		FinishedAt:          now,
	}
	rank, err := o.results.Rank(ctx, r.TournamentID, r.Score)
	if err != nil {
		return nil, fmt.Errorf("rank result: %w", err)
	}
	r.Rank = rank
	if err := o.results.Record(ctx, r); err != nil {
		return nil, fmt.Errorf("record result: %w", err)
	}
	return &r, nil
}

func (o *Orchestrator) withLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	return withLocks(ctx, o.locker, o.opts.LockWait, keys, fn)
}

func (o *Orchestrator) load(ctx context.Context, tableID string) (*models.GameTable, error) {
	data, err := o.tables.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return models.DeserializeTable(data, o.opts.Rules)
}

// loadOwned hides tables of other users behind ErrNotFound.
func (o *Orchestrator) loadOwned(ctx context.Context, tableID, userID string) (*models.GameTable, error) {
	table, err := o.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.UserID != userID {
		return nil, fmt.Errorf("%w: table %s", models.ErrNotFound, tableID)
	}
	return table, nil
}

func (o *Orchestrator) save(ctx context.Context, table *models.GameTable) error {
	data, err := table.Serialize()
	if err != nil {
		return err
	}
	if err := o.tables.Put(ctx, table.ID, data, table.UserID); err != nil {
		return fmt.Errorf("save table %s: %w", table.ID, err)
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, typ events.Type, table *models.GameTable, payload any) {
	err := o.sink.Emit(ctx, events.Event{
		Type:         typ,
		UserID:       table.UserID,
		TableID:      table.ID,
		TournamentID: table.TournamentID,
		Payload:      payload,
	})
	if err != nil {
		log.WithFields(log.Fields{"tableId": table.ID, "type": typ}).Warnf("emit event: %s", err)
	}
}
