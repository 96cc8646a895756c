package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avvvet/ludo-services/internal/comm"
	"github.com/avvvet/ludo-services/internal/gamesvc/events"
)

// conn is the part of *nats.Conn the broker publishes through.
type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards gameplay events to the socket service, addressed by user.
type Publisher struct {
	conn    conn
	subject string
}

func NewPublisher(c conn) *Publisher {
	return &Publisher{conn: c, subject: comm.SubjectGame}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	payload, err := json.Marshal(&comm.WSMessage{
		Type:   string(e.Type),
		Data:   data,
		UserId: e.UserID,
	})
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, payload)
}
