package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/hqanh/baucua-backend/internal/game"
	"github.com/hqanh/baucua-backend/internal/hub"
	"github.com/hqanh/baucua-backend/internal/types"
)

const writeTimeout = 3 * time.Second

func Handler(h *hub.Hub, log *zap.Logger, origins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerMessage, 16)
		connID := randID(12)

		h.Inbox() <- hub.Connect{ConnID: connID, Outbox: out}
		defer func() { h.Inbox() <- hub.Disconnect{ConnID: connID} }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("marshal server message", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Anything else: exit too; hub.Disconnect runs in the defer.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"error","message":"bad json"}`))
				continue
			}

			msg, ok := toHubMsg(connID, cm)
			if !ok {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"error","message":"unknown type"}`))
				continue
			}

			h.Inbox() <- msg
		}
	}
}

func toHubMsg(connID string, m types.ClientMessage) (hub.HubMsg, bool) {
	switch m.Type {
	case "login":
		return hub.Login{ConnID: connID, Username: m.Username}, true
	case "restoreSession":
		return hub.RestoreSession{ConnID: connID, PriorID: m.PriorPlayerID, Username: m.Username}, true
	case "createRoom":
		return hub.CreateRoom{ConnID: connID, Name: m.Name}, true
	case "joinRoom":
		return hub.JoinRoom{ConnID: connID, RoomID: m.RoomID}, true
	case "leaveRoom":
		return hub.LeaveRoom{ConnID: connID}, true
	case "placeBet":
		// Symbol legality is the engine's call; pass it through as-is.
		return hub.PlaceBet{ConnID: connID, Symbol: game.Symbol(m.Symbol), Amount: m.Amount}, true
	case "toggleReady":
		return hub.ToggleReady{ConnID: connID}, true
	case "rollDice":
		return hub.RollDice{ConnID: connID}, true
	default:
		return nil, false
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
