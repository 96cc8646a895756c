package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/avvvet/ludo-services/internal/comm"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/avvvet/ludo-services/internal/gamesvc/service"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Gameplay interface {
	JoinTournament(ctx context.Context, userID, tournamentID string) (*models.NextAction, error)
	RollDice(ctx context.Context, userID, tableID string) (*models.RollDiceResult, error)
	MovePawn(ctx context.Context, userID, tableID, pawnID string, dice int) (*models.MovePawnResult, error)
	LeaveTable(ctx context.Context, userID, tableID string) error
	GetReconnectionData(ctx context.Context, userID, tournamentID string) (*service.ReconnectionData, error)
	ForceReconnect(ctx context.Context, userID, tableID string) (*service.ReconnectionData, error)
}

type Balances interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Broker consumes client requests relayed by the socket service and answers
// each one on the game subject, addressed to the requesting socket.
type Broker struct {
	Conn     *nats.Conn
	out      conn
	gameplay Gameplay
	balances Balances

	requestTimeout time.Duration
}

func NewBroker(nc *nats.Conn, gameplay Gameplay, balances Balances, requestTimeout time.Duration) *Broker {
	b := &Broker{
		Conn:           nc,
		gameplay:       gameplay,
		balances:       balances,
		requestTimeout: requestTimeout,
	}
	if nc != nil {
		b.out = nc
	}
	return b
}

// Run shares the socket subject with the other game service instances and
// handles requests on a fixed number of workers until ctx is done.
func (b *Broker) Run(ctx context.Context, queueGroup string, workers int) error {
	msgs := make(chan *nats.Msg, workers*64)
	sub, err := b.Conn.ChanQueueSubscribe(comm.SubjectSocket, queueGroup, msgs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case m := <-msgs:
					b.handleMessage(ctx, m.Data)
				}
			}
		})
	}
	return g.Wait()
}

func (b *Broker) handleMessage(ctx context.Context, data []byte) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}
	if msg.SocketId == "" {
		log.Warnf("dropping %s without socket id", msg.Type)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	res, ok := b.dispatch(ctx, msg)
	if !ok {
		log.Warnf("unknown message %q from socket %s", msg.Type, msg.SocketId)
		return
	}
	b.reply(msg, res)
}

// dispatch runs one request. ok is false for an unknown message type.
func (b *Broker) dispatch(ctx context.Context, msg *comm.WSMessage) (res comm.Res, ok bool) {
	if msg.UserId == "" {
		return comm.Res{Code: comm.CodeBadRequest, Error: "unauthenticated socket"}, true
	}

	var data any
	var err error
	switch msg.Type {
	case comm.TypeJoinTournament:
		var req comm.JoinTournamentReq
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.TournamentID == "" {
			return badRequest(msg.Type), true
		}
		data, err = b.gameplay.JoinTournament(ctx, msg.UserId, req.TournamentID)

	case comm.TypeRollDice:
		var req comm.TableReq
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.TableID == "" {
			return badRequest(msg.Type), true
		}
		data, err = b.gameplay.RollDice(ctx, msg.UserId, req.TableID)

	case comm.TypeMovePawn:
		var req comm.MovePawnReq
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.TableID == "" || req.PawnID == "" {
			return badRequest(msg.Type), true
		}
		data, err = b.gameplay.MovePawn(ctx, msg.UserId, req.TableID, req.PawnID, req.Dice)

	case comm.TypeLeaveTable:
		var req comm.TableReq
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.TableID == "" {
			return badRequest(msg.Type), true
		}
		err = b.gameplay.LeaveTable(ctx, msg.UserId, req.TableID)

	case comm.TypeReconnect:
		var req comm.ReconnectReq
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				return badRequest(msg.Type), true
			}
		}
		data, err = b.gameplay.GetReconnectionData(ctx, msg.UserId, req.TournamentID)

	case comm.TypeForceReconnect:
		var req comm.TableReq
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.TableID == "" {
			return badRequest(msg.Type), true
		}
		data, err = b.gameplay.ForceReconnect(ctx, msg.UserId, req.TableID)

	case comm.TypeGetBalance:
		var balance decimal.Decimal
		balance, err = b.balances.GetBalance(ctx, msg.UserId)
		data = comm.PlayerData{UserId: msg.UserId, Balance: balance.StringFixed(2)}

	default:
		return comm.Res{}, false
	}

	if err != nil {
		code := Code(err)
		if code == comm.CodeInternal || code == comm.CodeUnavailable {
			log.WithField("userId", msg.UserId).Errorf("%s: %s", msg.Type, err)
		} else {
			log.WithField("userId", msg.UserId).Debugf("%s rejected: %s", msg.Type, err)
		}
		return fail(err, code), true
	}
	return comm.Res{Status: true, Data: data}, true
}

func (b *Broker) reply(req *comm.WSMessage, res comm.Res) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Errorf("unable to marshal %s response: %s", req.Type, err)
		return
	}
	payload, err := json.Marshal(&comm.WSMessage{
		Type:     comm.ResponseType(req.Type),
		Data:     data,
		SocketId: req.SocketId,
		UserId:   req.UserId,
	})
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}
	if err := b.out.Publish(comm.SubjectGame, payload); err != nil {
		log.Errorf("Error publishing to topic %s: %s", comm.SubjectGame, err)
	}
}

// Code maps an error kind to the code the client sees.
func Code(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		return comm.CodeInvalidTransition
	case errors.Is(err, models.ErrIllegalMove):
		return comm.CodeIllegalMove
	case errors.Is(err, models.ErrNotFound):
		return comm.CodeNotFound
	case errors.Is(err, models.ErrNotJoinable):
		return comm.CodeNotJoinable
	case errors.Is(err, models.ErrCapacityExceeded):
		return comm.CodeCapacityExceeded
	case errors.Is(err, models.ErrInsufficientBalance):
		return comm.CodeInsufficientBalance
	case errors.Is(err, models.ErrDownstream), errors.Is(err, context.DeadlineExceeded):
		return comm.CodeUnavailable
	default:
		return comm.CodeInternal
	}
}

func fail(err error, code string) comm.Res {
	msg := err.Error()
	if code == comm.CodeInternal {
		msg = "internal error"
	}
	return comm.Res{Code: code, Error: msg}
}

func badRequest(typ string) comm.Res {
	return comm.Res{Code: comm.CodeBadRequest, Error: "malformed " + typ + " request"}
}
