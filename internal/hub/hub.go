package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hqanh/baucua-backend/internal/game"
	"github.com/hqanh/baucua-backend/internal/types"
)

type HubMsg interface{ isHubMsg() }

type Connect struct {
	ConnID string
	Outbox chan types.ServerMessage
}

type Disconnect struct{ ConnID string }

type Login struct {
	ConnID   string
	Username string
}

type RestoreSession struct {
	ConnID   string
	PriorID  string
	Username string
}

type CreateRoom struct {
	ConnID string
	Name   string
}

type JoinRoom struct {
	ConnID string
	RoomID string
}

type LeaveRoom struct{ ConnID string }

type PlaceBet struct {
	ConnID string
	Symbol game.Symbol
	Amount int
}

type ToggleReady struct{ ConnID string }

type RollDice struct{ ConnID string }

// resolveRoll is posted back onto the inbox by the round timer.
type resolveRoll struct{ RoomID string }

// GetState reflects internal state for tests and the debug endpoint.
type GetState struct {
	Reply chan Snapshot
}

type Shutdown struct{}

func (Connect) isHubMsg()        {}
func (Disconnect) isHubMsg()     {}
func (Login) isHubMsg()          {}
func (RestoreSession) isHubMsg() {}
func (CreateRoom) isHubMsg()     {}
func (JoinRoom) isHubMsg()       {}
func (LeaveRoom) isHubMsg()      {}
func (PlaceBet) isHubMsg()       {}
func (ToggleReady) isHubMsg()    {}
func (RollDice) isHubMsg()       {}
func (resolveRoll) isHubMsg()    {}
func (GetState) isHubMsg()       {}
func (Shutdown) isHubMsg()       {}

type Snapshot struct {
	NumConns int
	State    *game.State
}

// Hub is the single writer of the game aggregate. Every inbound event is
// a message on its inbox; broadcasts fan out over per-connection outboxes.
type Hub struct {
	inbox  chan HubMsg
	state  *game.State
	conns  map[string]chan types.ServerMessage
	rooms  map[string]map[string]bool // room id -> subscribed conn ids
	timers map[string]*time.Timer
	delay  time.Duration
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, delay time.Duration, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		state:  game.NewState(),
		conns:  make(map[string]chan types.ServerMessage),
		rooms:  make(map[string]map[string]bool),
		timers: make(map[string]*time.Timer),
		delay:  delay,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				h.conns[msg.ConnID] = msg.Outbox
				h.log.Info("client connected", zap.String("conn", msg.ConnID))

			case Disconnect:
				h.dropConn(msg.ConnID)
				h.apply(msg.ConnID, game.Command{Type: game.CmdDisconnect, ConnID: msg.ConnID})

			case Login:
				h.apply(msg.ConnID, game.Command{Type: game.CmdLogin, ConnID: msg.ConnID, Username: msg.Username})

			case RestoreSession:
				h.apply(msg.ConnID, game.Command{Type: game.CmdRestoreSession, ConnID: msg.ConnID, PriorID: msg.PriorID, Username: msg.Username})

			case CreateRoom:
				h.apply(msg.ConnID, game.Command{Type: game.CmdCreateRoom, ConnID: msg.ConnID, Name: msg.Name})

			case JoinRoom:
				h.apply(msg.ConnID, game.Command{Type: game.CmdJoinRoom, ConnID: msg.ConnID, RoomID: msg.RoomID})

			case LeaveRoom:
				h.apply(msg.ConnID, game.Command{Type: game.CmdLeaveRoom, ConnID: msg.ConnID})

			case PlaceBet:
				h.apply(msg.ConnID, game.Command{Type: game.CmdPlaceBet, ConnID: msg.ConnID, Symbol: msg.Symbol, Amount: msg.Amount})

			case ToggleReady:
				h.apply(msg.ConnID, game.Command{Type: game.CmdToggleReady, ConnID: msg.ConnID})

			case RollDice:
				h.apply(msg.ConnID, game.Command{Type: game.CmdRollDice, ConnID: msg.ConnID})

			case resolveRoll:
				delete(h.timers, msg.RoomID)
				results := game.Draw()
				h.apply("", game.Command{Type: game.CmdResolveRoll, RoomID: msg.RoomID, Results: results})

			case GetState:
				msg.Reply <- Snapshot{NumConns: len(h.conns), State: h.state.Clone()}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) apply(connID string, cmd game.Command) {
	events, err := game.Apply(h.state, cmd)
	if err != nil {
		h.log.Warn("command rejected",
			zap.String("conn", connID),
			zap.String("cmd", string(cmd.Type)),
			zap.Error(err))
		h.send(connID, types.ServerMessage{Type: types.MsgError, Message: err.Error()})
		return
	}
	if events == nil {
		// Stale reference; dropped by design.
		h.log.Debug("command ignored", zap.String("conn", connID), zap.String("cmd", string(cmd.Type)))
		return
	}
	for _, ev := range events {
		h.dispatch(ev)
	}
}

func (h *Hub) dispatch(ev game.Event) {
	switch ev.Type {
	case game.EvtLoginSuccess:
		h.send(ev.ConnID, types.ServerMessage{Type: types.MsgLoginSuccess, Player: ev.Player.Clone()})

	case game.EvtNotification:
		h.send(ev.ConnID, types.ServerMessage{Type: types.MsgNotification, NotifType: ev.Notif, Message: ev.Message})

	case game.EvtRoomSubscribe:
		subs, ok := h.rooms[ev.RoomID]
		if !ok {
			subs = make(map[string]bool)
			h.rooms[ev.RoomID] = subs
		}
		subs[ev.ConnID] = true

	case game.EvtRoomUnsubscribe:
		if subs, ok := h.rooms[ev.RoomID]; ok {
			delete(subs, ev.ConnID)
			if len(subs) == 0 {
				delete(h.rooms, ev.RoomID)
			}
		}

	case game.EvtScheduleResolve:
		h.armTimer(ev.RoomID)

	case game.EvtGameState:
		h.broadcastAll(types.ServerMessage{Type: types.MsgGameState, GameState: h.state.Clone()})

	case game.EvtRoomState:
		h.broadcastRoom(ev.RoomID, types.ServerMessage{Type: types.MsgRoomState, Room: ev.Room.Clone(), CanRoll: ev.CanRoll})

	case game.EvtStartRolling:
		h.broadcastRoom(ev.RoomID, types.ServerMessage{Type: types.MsgStartRolling})

	case game.EvtStopRolling:
		h.broadcastRoom(ev.RoomID, types.ServerMessage{Type: types.MsgStopRolling})

	case game.EvtDiceResults:
		h.broadcastRoom(ev.RoomID, types.ServerMessage{Type: types.MsgDiceResults, Results: ev.Results})
	}
}

func (h *Hub) armTimer(roomID string) {
	if _, ok := h.timers[roomID]; ok {
		return
	}
	h.timers[roomID] = time.AfterFunc(h.delay, func() {
		select {
		case h.inbox <- resolveRoll{RoomID: roomID}:
		case <-h.ctx.Done():
		}
	})
}

func (h *Hub) send(connID string, msg types.ServerMessage) {
	ch, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Slow/full client, drop it.
		h.dropConn(connID)
	}
}

func (h *Hub) broadcastAll(msg types.ServerMessage) {
	for id := range h.conns {
		h.send(id, msg)
	}
}

func (h *Hub) broadcastRoom(roomID string, msg types.ServerMessage) {
	for id := range h.rooms[roomID] {
		h.send(id, msg)
	}
}

func (h *Hub) dropConn(connID string) {
	ch, ok := h.conns[connID]
	if !ok {
		return
	}
	close(ch)
	delete(h.conns, connID)
	for roomID, subs := range h.rooms {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) shutdown() {
	for roomID, t := range h.timers {
		t.Stop()
		delete(h.timers, roomID)
	}
	for id, ch := range h.conns {
		close(ch)
		delete(h.conns, id)
	}
	clear(h.rooms)
	h.cancel()
}
