package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/ludo-services/internal/comm"
	"github.com/avvvet/ludo-services/internal/gamesvc/events"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/avvvet/ludo-services/internal/gamesvc/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	msg     comm.WSMessage
}

type fakeConn struct {
	mu  sync.Mutex
	out []published
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var m comm.WSMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.out = append(c.out, published{subject, m})
	return nil
}

type fakeGameplay struct {
	calls []string
	err   error
}

func (f *fakeGameplay) JoinTournament(_ context.Context, userID, tournamentID string) (*models.NextAction, error) {
	f.calls = append(f.calls, fmt.Sprintf("join %s %s", userID, tournamentID))
	if f.err != nil {
		return nil, f.err
	}
	return &models.NextAction{TableID: "table-1", Action: models.ActionStartGame}, nil
}

func (f *fakeGameplay) RollDice(_ context.Context, userID, tableID string) (*models.RollDiceResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("roll %s %s", userID, tableID))
	return &models.RollDiceResult{Dice: 4, Dices: []int{4}}, f.err
}

func (f *fakeGameplay) MovePawn(_ context.Context, userID, tableID, pawnID string, dice int) (*models.MovePawnResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("move %s %s %s %d", userID, tableID, pawnID, dice))
	return &models.MovePawnResult{Score: 4}, f.err
}

func (f *fakeGameplay) LeaveTable(_ context.Context, userID, tableID string) error {
	f.calls = append(f.calls, fmt.Sprintf("leave %s %s", userID, tableID))
	return f.err
}

func (f *fakeGameplay) GetReconnectionData(_ context.Context, userID, tournamentID string) (*service.ReconnectionData, error) {
	f.calls = append(f.calls, fmt.Sprintf("reconnect %s %q", userID, tournamentID))
	return &service.ReconnectionData{}, f.err
}

func (f *fakeGameplay) ForceReconnect(_ context.Context, userID, tableID string) (*service.ReconnectionData, error) {
	f.calls = append(f.calls, fmt.Sprintf("force %s %s", userID, tableID))
	return &service.ReconnectionData{}, f.err
}

type fakeBalances map[string]decimal.Decimal

func (f fakeBalances) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	return f[userID], nil
}

func newTestBroker(g Gameplay) (*Broker, *fakeConn) {
	c := &fakeConn{}
	b := NewBroker(nil, g, fakeBalances{"7": decimal.RequireFromString("12.5")}, time.Second)
	b.out = c
	return b, c
}

func request(t *testing.T, typ, user string, data any) []byte {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(comm.WSMessage{Type: typ, Data: raw, SocketId: "sock-1", UserId: user})
	require.NoError(t, err)
	return payload
}

func lastRes(t *testing.T, c *fakeConn) (comm.WSMessage, comm.Res) {
	require.NotEmpty(t, c.out)
	p := c.out[len(c.out)-1]
	assert.Equal(t, comm.SubjectGame, p.subject)
	var res comm.Res
	require.NoError(t, json.Unmarshal(p.msg.Data, &res))
	return p.msg, res
}

func TestDispatchRequests(t *testing.T) {
	tests := []struct {
		typ  string
		data any
		call string
	}{
		{comm.TypeJoinTournament, comm.JoinTournamentReq{TournamentID: "tour-1"}, "join 7 tour-1"},
		{comm.TypeRollDice, comm.TableReq{TableID: "table-1"}, "roll 7 table-1"},
		{comm.TypeMovePawn, comm.MovePawnReq{TableID: "table-1", PawnID: "0-2", Dice: 6}, "move 7 table-1 0-2 6"},
		{comm.TypeLeaveTable, comm.TableReq{TableID: "table-1"}, "leave 7 table-1"},
		{comm.TypeReconnect, comm.ReconnectReq{}, `reconnect 7 ""`},
		{comm.TypeForceReconnect, comm.TableReq{TableID: "table-1"}, "force 7 table-1"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			g := &fakeGameplay{}
			b, c := newTestBroker(g)

			b.handleMessage(context.Background(), request(t, tt.typ, "7", tt.data))

			assert.Equal(t, []string{tt.call}, g.calls)
			msg, res := lastRes(t, c)
			assert.Equal(t, tt.typ+"-response", msg.Type)
			assert.Equal(t, "sock-1", msg.SocketId)
			assert.True(t, res.Status)
			assert.Empty(t, res.Code)
		})
	}
}

func TestDispatchMapsErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: roll while movePawn", models.ErrInvalidTransition), comm.CodeInvalidTransition},
		{fmt.Errorf("%w: overshoot", models.ErrIllegalMove), comm.CodeIllegalMove},
		{fmt.Errorf("%w: table x", models.ErrNotFound), comm.CodeNotFound},
		{models.ErrNotJoinable, comm.CodeNotJoinable},
		{models.ErrCapacityExceeded, comm.CodeCapacityExceeded},
		{models.ErrInsufficientBalance, comm.CodeInsufficientBalance},
		{fmt.Errorf("acquire lock x: %w", context.DeadlineExceeded), comm.CodeUnavailable},
		{errors.New("boom"), comm.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			b, c := newTestBroker(&fakeGameplay{err: tt.err})
			b.handleMessage(context.Background(), request(t, comm.TypeLeaveTable, "7", comm.TableReq{TableID: "table-1"}))

			_, res := lastRes(t, c)
			assert.False(t, res.Status)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	b, c := newTestBroker(&fakeGameplay{err: errors.New("pg: connection reset by 10.0.0.3")})
	b.handleMessage(context.Background(), request(t, comm.TypeLeaveTable, "7", comm.TableReq{TableID: "table-1"}))

	_, res := lastRes(t, c)
	assert.Equal(t, "internal error", res.Error)
}

func TestBadRequests(t *testing.T) {
	g := &fakeGameplay{}
	b, c := newTestBroker(g)

	b.handleMessage(context.Background(), request(t, comm.TypeMovePawn, "7", comm.MovePawnReq{TableID: "table-1"}))
	_, res := lastRes(t, c)
	assert.Equal(t, comm.CodeBadRequest, res.Code)

	b.handleMessage(context.Background(), request(t, comm.TypeRollDice, "", comm.TableReq{TableID: "table-1"}))
	_, res = lastRes(t, c)
	assert.Equal(t, comm.CodeBadRequest, res.Code)

	assert.Empty(t, g.calls)
}

func TestUnknownAndUnroutableMessagesAreDropped(t *testing.T) {
	b, c := newTestBroker(&fakeGameplay{})

	b.handleMessage(context.Background(), request(t, "select-card", "7", nil))
	b.handleMessage(context.Background(), []byte("{not json"))
	payload, _ := json.Marshal(comm.WSMessage{Type: comm.TypeRollDice, UserId: "7"})
	b.handleMessage(context.Background(), payload)

	assert.Empty(t, c.out)
}

func TestGetBalance(t *testing.T) {
	b, c := newTestBroker(&fakeGameplay{})
	b.handleMessage(context.Background(), request(t, comm.TypeGetBalance, "7", nil))

	_, res := lastRes(t, c)
	require.True(t, res.Status)
	data := res.Data.(map[string]any)
	assert.Equal(t, "12.50", data["balance"])
}

func TestPublisherAddressesUser(t *testing.T) {
	c := &fakeConn{}
	p := NewPublisher(c)

	err := p.Publish(context.Background(), events.Event{
		Type:    events.NextAction,
		UserID:  "7",
		TableID: "table-1",
		Payload: models.NextAction{TableID: "table-1", Action: models.ActionRollDice},
	})
	require.NoError(t, err)

	require.Len(t, c.out, 1)
	msg := c.out[0].msg
	assert.Equal(t, "nextAction", msg.Type)
	assert.Equal(t, "7", msg.UserId)
	assert.Empty(t, msg.SocketId)

	var e events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, "table-1", e.TableID)
}

func TestPublisherHonoursContext(t *testing.T) {
	c := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewPublisher(c).Publish(ctx, events.Event{Type: events.EndGame}), context.Canceled)
	assert.Empty(t, c.out)
}
