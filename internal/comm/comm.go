package comm

import "encoding/json"

// NATS subjects shared by the game and socket services.
const (
	SubjectGame   = "game.service"   // game -> socket
	SubjectSocket = "socket.service" // socket -> game
)

// Client requests relayed from the socket service.
const (
	TypeJoinTournament = "join-tournament"
	TypeRollDice       = "roll-dice"
	TypeMovePawn       = "move-pawn"
	TypeLeaveTable     = "leave-table"
	TypeReconnect      = "reconnect"
	TypeForceReconnect = "force-reconnect"
	TypeGetBalance     = "get-balance"
)

// Response type for a request type, e.g. "roll-dice-response".
func ResponseType(requestType string) string {
	return requestType + "-response"
}

// WSMessage is the envelope on both the websocket and NATS. Replies are routed by
// SocketId, gameplay events by UserId.
type WSMessage struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
	UserId   string          `json:"userid,omitempty"`
}

type JoinTournamentReq struct {
	TournamentID string `json:"tournamentId"`
}

type TableReq struct {
	TableID string `json:"tableId"`
}

type MovePawnReq struct {
	TableID string `json:"tableId"`
	PawnID  string `json:"pawnId"`
	Dice    int    `json:"dice"`
}

type ReconnectReq struct {
	TournamentID string `json:"tournamentId"`
}

// Res answers a single request. Code is set when Status is false.
type Res struct {
	Status bool   `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Client-visible error codes.
const (
	CodeBadRequest          = "bad_request"
	CodeInvalidTransition   = "invalid_transition"
	CodeIllegalMove         = "illegal_move"
	CodeNotFound            = "not_found"
	CodeNotJoinable         = "not_joinable"
	CodeCapacityExceeded    = "capacity_exceeded"
	CodeInsufficientBalance = "insufficient_balance"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal"
)

type PlayerData struct {
	UserId  string `json:"user_id"`
	Balance string `json:"balance"`
}
