package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/ludo-services/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Publisher forwards client requests to the game service.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// client serializes writes; gorilla allows one concurrent writer per connection.
type client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	userId string
}

func (c *client) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type Ws struct {
	connMap sync.Map // socketId -> *client

	mu      sync.RWMutex
	userMap map[string]map[string]struct{} // userId -> socketIds

	Broker Publisher
}

func NewWs() *Ws {
	return &Ws{userMap: make(map[string]map[string]struct{})}
}

var relayed = map[string]bool{
	comm.TypeJoinTournament: true,
	comm.TypeRollDice:       true,
	comm.TypeMovePawn:       true,
	comm.TypeLeaveTable:     true,
	comm.TypeReconnect:      true,
	comm.TypeForceReconnect: true,
	comm.TypeGetBalance:     true,
}

// SocketMessage relays a client request to the game service. The sender's
// socket and authenticated user replace whatever the client put there.
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	if !relayed[message.Type] {
		log.Warnf("unknown event received: %s", message.Type)
		return
	}
	userId, ok := s.UserOf(socketId)
	if !ok {
		log.Warnf("message %s from unregistered socket %s", message.Type, socketId)
		return
	}

	message.SocketId = socketId
	message.UserId = userId

	bytes, err := json.Marshal(message)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}
	if err := s.Broker.Publish(comm.SubjectSocket, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", comm.SubjectSocket, err)
		return
	}
	log.Debugf("relayed %s for user %s", message.Type, userId)
}

func (s *Ws) StoreConnection(socketId, userId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &client{conn: conn, userId: userId})

	s.mu.Lock()
	defer s.mu.Unlock()
	sockets, ok := s.userMap[userId]
	if !ok {
		sockets = make(map[string]struct{})
		s.userMap[userId] = sockets
	}
	sockets[socketId] = struct{}{}
}

func (s *Ws) HandleDisconnect(socketId string) {
	v, ok := s.connMap.LoadAndDelete(socketId)
	if !ok {
		return
	}
	userId := v.(*client).userId

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userMap[userId], socketId)
	if len(s.userMap[userId]) == 0 {
		delete(s.userMap, userId)
	}
}

func (s *Ws) UserOf(socketId string) (string, bool) {
	v, ok := s.connMap.Load(socketId)
	if !ok {
		return "", false
	}
	return v.(*client).userId, true
}

// UserSockets lists the sockets a user is connected on, one per open client.
func (s *Ws) UserSockets(userId string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sockets := make([]string, 0, len(s.userMap[userId]))
	for id := range s.userMap[userId] {
		sockets = append(sockets, id)
	}
	return sockets
}

// Send writes m to one socket and reports whether the socket was known.
func (s *Ws) Send(socketId string, m *comm.WSMessage) bool {
	v, ok := s.connMap.Load(socketId)
	if !ok {
		return false
	}
	if err := v.(*client).write(m); err != nil {
		log.Errorf("write to socket %s: %v", socketId, err)
	}
	return true
}

func (s *Ws) SendError(socketId, errorMsg string) {
	v, ok := s.connMap.Load(socketId)
	if !ok {
		return
	}
	if err := v.(*client).write(map[string]interface{}{"type": "error", "error": errorMsg}); err != nil {
		log.Errorf("Failed to send error message to client: %v", err)
	}
}
