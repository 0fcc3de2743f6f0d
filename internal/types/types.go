package types

import "github.com/hqanh/baucua-backend/internal/game"

const (
	MsgLoginSuccess = "loginSuccess"
	MsgError        = "error"
	MsgNotification = "notification"
	MsgGameState    = "gameState"
	MsgRoomState    = "roomState"
	MsgStartRolling = "startRolling"
	MsgStopRolling  = "stopRolling"
	MsgDiceResults  = "diceResults"
)

type ClientMessage struct {
	Type          string `json:"type"`
	Username      string `json:"username,omitempty"`
	PriorPlayerID string `json:"priorPlayerId,omitempty"`
	Name          string `json:"name,omitempty"`
	RoomID        string `json:"roomId,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	Amount        int    `json:"amount,omitempty"`
}

// ServerMessage frames everything the server pushes. Nested state is always
// a clone so the socket writer can marshal it off the hub goroutine.
type ServerMessage struct {
	Type      string        `json:"type"`
	Player    *game.Player  `json:"player,omitempty"`
	GameState *game.State   `json:"gameState,omitempty"`
	Room      *game.Room    `json:"room,omitempty"`
	CanRoll   bool          `json:"canRollDice,omitempty"`
	Results   []game.Symbol `json:"results,omitempty"`
	NotifType string        `json:"notifType,omitempty"`
	Message   string        `json:"message,omitempty"`
}
