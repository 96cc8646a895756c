package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/events"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/shopspring/decimal"
)

type fakeTables struct {
	mu     sync.Mutex
	data   map[string][]byte
	active map[string]string
	putErr error
}

func newFakeTables() *fakeTables {
	return &fakeTables{data: map[string][]byte{}, active: map[string]string{}}
}

func (f *fakeTables) Get(_ context.Context, tableID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", models.ErrNotFound, tableID)
	}
	return d, nil
}

func (f *fakeTables) Put(_ context.Context, tableID string, state []byte, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.data[tableID] = state
	if userID != "" {
		f.active[userID] = tableID
	}
	return nil
}

func (f *fakeTables) Delete(_ context.Context, tableID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, tableID)
	if f.active[userID] == tableID {
		delete(f.active, userID)
	}
	return nil
}

func (f *fakeTables) ActiveTableID(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID], nil
}

func (f *fakeTables) ListIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.data))
	for id := range f.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeTables) failPut(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putErr = err
}

func (f *fakeTables) raw(tableID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[tableID]
}

type fakeTournaments struct {
	mu      sync.Mutex
	byID    map[string]*models.Tournament
	entries map[string][]string // user ids in entry order
	tables  map[string][]string // table ids, parallel to entries
	created []*models.Tournament

	addEntryErr error
	getErrs     []error // returned by Get, one per call, before the stored value
}

func newFakeTournaments(ts ...*models.Tournament) *fakeTournaments {
	f := &fakeTournaments{byID: map[string]*models.Tournament{}, entries: map[string][]string{}, tables: map[string][]string{}}
	for _, t := range ts {
		f.byID[t.ID] = t
	}
	return f
}

func (f *fakeTournaments) Get(_ context.Context, id string) (*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, err
	}
	t, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: tournament %s", models.ErrNotFound, id)
	}
	cp := *t
	cp.PawnPositions = append([]models.Pawn(nil), t.PawnPositions...)
	return &cp, nil
}

func (f *fakeTournaments) status(id string) models.TournamentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

func (f *fakeTournaments) UserEntryCount(_ context.Context, tournamentID, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.entries[tournamentID] {
		if u == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeTournaments) AddEntry(_ context.Context, tournamentID, userID, tableID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addEntryErr != nil {
		return 0, f.addEntryErr
	}
	f.entries[tournamentID] = append(f.entries[tournamentID], userID)
	f.tables[tournamentID] = append(f.tables[tournamentID], tableID)
	f.byID[tournamentID].EnteredUserCount++
	return f.byID[tournamentID].EnteredUserCount, nil
}

func (f *fakeTournaments) RemoveEntry(_ context.Context, tournamentID, tableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.tables[tournamentID] {
		if id != tableID {
			continue
		}
		f.tables[tournamentID] = append(f.tables[tournamentID][:i], f.tables[tournamentID][i+1:]...)
		f.entries[tournamentID] = append(f.entries[tournamentID][:i], f.entries[tournamentID][i+1:]...)
		f.byID[tournamentID].EnteredUserCount--
		return nil
	}
	return nil
}

func (f *fakeTournaments) setAddEntryErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addEntryErr = err
}

// failGet makes the next len(errs) calls to Get fail.
func (f *fakeTournaments) failGet(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErrs = append(f.getErrs, errs...)
}

func (f *fakeTournaments) entered(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].EnteredUserCount
}

func (f *fakeTournaments) SavePawnPositions(_ context.Context, tournamentID string, pawns []models.Pawn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[tournamentID].PawnPositions = append([]models.Pawn(nil), pawns...)
	return nil
}

func (f *fakeTournaments) UpdateStatus(_ context.Context, id string, status models.TournamentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = status
	return nil
}

func (f *fakeTournaments) Extend(_ context.Context, id string, endAt time.Time, extendedCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].EndAt = endAt
	f.byID[id].ExtendedCount = extendedCount
	return nil
}

func (f *fakeTournaments) Create(_ context.Context, t *models.Tournament) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = fmt.Sprintf("tour-%d", len(f.byID)+1)
	f.byID[t.ID] = t
	f.created = append(f.created, t)
	return t.ID, nil
}

func (f *fakeTournaments) Complete(_ context.Context, id string, totalPrize decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Status = models.StatusCompleted
	f.byID[id].TotalPrize = totalPrize
	return nil
}

func (f *fakeTournaments) EntrantUserIDs(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var users []string
	for _, u := range f.entries[id] {
		if !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}
	return users, nil
}

func (f *fakeTournaments) DueForClose(_ context.Context, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, t := range f.byID {
		if t.Status == models.StatusLive && !t.EndAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeResults struct {
	mu      sync.Mutex
	results []models.GameResult
}

func (f *fakeResults) Record(_ context.Context, r models.GameResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.results {
		if f.results[i].TableID == r.TableID {
			f.results[i] = r
			return nil
		}
	}
	f.results = append(f.results, r)
	return nil
}

func (f *fakeResults) Rank(_ context.Context, tournamentID string, score decimal.Decimal) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rank := 1
	for _, r := range f.results {
		if r.TournamentID == tournamentID && r.Score.GreaterThan(score) {
			rank++
		}
	}
	return rank, nil
}

func (f *fakeResults) Count(_ context.Context, tournamentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.results {
		if r.TournamentID == tournamentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeResults) Leaderboard(_ context.Context, tournamentID string) ([]models.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var board []models.GameResult
	for _, r := range f.results {
		if r.TournamentID == tournamentID {
			board = append(board, r)
		}
	}
	sort.SliceStable(board, func(i, j int) bool {
		if !board[i].Score.Equal(board[j].Score) {
			return board[i].Score.GreaterThan(board[j].Score)
		}
		return board[i].FinishedAt.Before(board[j].FinishedAt)
	})
	return board, nil
}

func (f *fakeResults) ByTable(_ context.Context, tableID string) (*models.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.TableID == tableID {
			cp := r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: result for table %s", models.ErrNotFound, tableID)
}

func (f *fakeResults) LatestForUser(_ context.Context, tournamentID, userID string) (*models.GameResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.GameResult
	for i, r := range f.results {
		if r.TournamentID == tournamentID && r.UserID == userID {
			if latest == nil || r.FinishedAt.After(latest.FinishedAt) {
				latest = &f.results[i]
			}
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no result for %s", models.ErrNotFound, userID)
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeResults) all() []models.GameResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GameResult(nil), f.results...)
}

type debit struct {
	userID       string
	amount       decimal.Decimal
	tournamentID string
	entryNo      int
}

type fakeWallet struct {
	mu        sync.Mutex
	debitErr  error
	creditErr error
	refundErr error
	debits    []debit
	credited  []models.Prize
	refunded  []string
}

func (f *fakeWallet) DebitJoinFee(_ context.Context, userID string, amount decimal.Decimal, tournamentID string, entryNo int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return f.debitErr
	}
	f.debits = append(f.debits, debit{userID, amount, tournamentID, entryNo})
	return nil
}

func (f *fakeWallet) CreditPrizes(_ context.Context, _ string, prizes []models.Prize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creditErr != nil {
		return f.creditErr
	}
	f.credited = append(f.credited, prizes...)
	return nil
}

func (f *fakeWallet) RefundJoinFees(_ context.Context, tournamentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunded = append(f.refunded, tournamentID)
	return nil
}

type push struct {
	users       []string
	title, body string
	link        string
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []push
}

func (f *fakeNotifier) PushToUsers(_ context.Context, userIDs []string, title, body, deepLink string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{userIDs, title, body, deepLink})
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeSink) Emit(_ context.Context, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) ofType(t events.Type) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// manualClock collects scheduled callbacks; tests fire them explicitly.
type manualClock struct {
	mu      sync.Mutex
	pending []pendingCall
}

type pendingCall struct {
	delay time.Duration
	f     func()
}

func (c *manualClock) after(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, pendingCall{d, f})
}

// fire runs, in scheduling order, every pending callback with the given delay.
func (c *manualClock) fire(d time.Duration) int {
	c.mu.Lock()
	var run []func()
	keep := c.pending[:0]
	for _, p := range c.pending {
		if p.delay == d {
			run = append(run, p.f)
		} else {
			keep = append(keep, p)
		}
	}
	c.pending = keep
	c.mu.Unlock()

	for _, f := range run {
		f()
	}
	return len(run)
}

func (c *manualClock) count(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pending {
		if p.delay == d {
			n++
		}
	}
	return n
}

// scriptRoller plays scripted dice for Intn(6) and picks the first choice otherwise.
type scriptRoller struct {
	mu   sync.Mutex
	dice []int
}

func (r *scriptRoller) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == 6 && len(r.dice) > 0 {
		v := r.dice[0]
		r.dice = r.dice[1:]
		return v - 1
	}
	return 0
}

func (r *scriptRoller) push(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dice = append(r.dice, values...)
}
