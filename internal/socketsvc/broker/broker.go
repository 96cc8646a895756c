package broker

import (
	"encoding/json"

	"github.com/avvvet/ludo-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Sockets is the connection registry the broker delivers into.
type Sockets interface {
	Send(socketId string, m *comm.WSMessage) bool
	UserSockets(userId string) []string
}

type Broker struct {
	Conn    *nats.Conn
	sockets Sockets
}

func NewBroker(conn *nats.Conn, sockets Sockets) *Broker {
	return &Broker{Conn: conn, sockets: sockets}
}

// consume messages from the game service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, func(m *nats.Msg) { b.handleMessages(m.Data) })
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to the game service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages routes a reply to the requesting socket and an event to every
// socket of the addressed user. Messages for users connected elsewhere are dropped.
func (b *Broker) handleMessages(data []byte) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(data, message); err != nil {
		log.Errorf("Error %s", err)
		return
	}

	switch {
	case message.SocketId != "":
		b.sockets.Send(message.SocketId, message)
	case message.UserId != "":
		for _, socketId := range b.sockets.UserSockets(message.UserId) {
			b.sockets.Send(socketId, message)
		}
	default:
		log.Warnf("unroutable %s message", message.Type)
	}
}
