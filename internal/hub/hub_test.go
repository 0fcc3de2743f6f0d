package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hqanh/baucua-backend/internal/game"
	"github.com/hqanh/baucua-backend/internal/types"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

// helper: drain messages until one of the wanted type arrives
func waitFor(t *testing.T, ch <-chan types.ServerMessage, msgType string, within time.Duration) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %q", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", msgType)
			return types.ServerMessage{} // unreachable
		}
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, msg)
	case <-time.After(within):
	}
}

func snapshot(t *testing.T, h *Hub) Snapshot {
	t.Helper()
	reply := make(chan Snapshot, 1)
	h.Inbox() <- GetState{Reply: reply}
	select {
	case snap := <-reply:
		return snap
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func newTestHub(t *testing.T, delay time.Duration) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, delay, zap.NewNop())
}

func connect(t *testing.T, h *Hub, connID string, buf int) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, buf)
	h.Inbox() <- Connect{ConnID: connID, Outbox: out}
	return out
}

func TestHub_LoginEmitsSuccessThenBroadcast(t *testing.T) {
	h := newTestHub(t, time.Second)

	out1 := connect(t, h, "c1", 8)
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}

	first := recvMsg(t, out1, time.Second)
	require.Equal(t, types.MsgLoginSuccess, first.Type)
	require.NotNil(t, first.Player)
	assert.Equal(t, "alice", first.Player.Username)
	assert.Equal(t, game.StartingBalance, first.Player.Balance)

	state := recvMsg(t, out1, time.Second)
	require.Equal(t, types.MsgGameState, state.Type)
	require.NotNil(t, state.GameState)
	assert.Contains(t, state.GameState.Players, "c1")

	// A second login reaches the first client as a broadcast.
	out2 := connect(t, h, "c2", 8)
	h.Inbox() <- Login{ConnID: "c2", Username: "bob"}
	waitFor(t, out2, types.MsgLoginSuccess, time.Second)
	update := waitFor(t, out1, types.MsgGameState, time.Second)
	assert.Len(t, update.GameState.Players, 2)
}

func TestHub_ValidationErrorIsDirected(t *testing.T) {
	h := newTestHub(t, time.Second)

	out1 := connect(t, h, "c1", 8)
	out2 := connect(t, h, "c2", 8)
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}
	update := waitFor(t, out1, types.MsgGameState, time.Second)
	for len(update.GameState.Players) != 1 {
		update = waitFor(t, out1, types.MsgGameState, time.Second)
	}
	waitFor(t, out2, types.MsgGameState, time.Second)

	h.Inbox() <- Login{ConnID: "c2", Username: "alice"}
	errMsg := recvMsg(t, out2, time.Second)
	require.Equal(t, types.MsgError, errMsg.Type)
	assert.NotEmpty(t, errMsg.Message)

	// The rejected command must not reach anyone else.
	recvNoMsg(t, out1, 100*time.Millisecond)
}

func TestHub_RoundFlow(t *testing.T) {
	restore := game.Draw
	game.Draw = func() []game.Symbol {
		return []game.Symbol{game.SymbolBau, game.SymbolCua, game.SymbolBau}
	}
	t.Cleanup(func() { game.Draw = restore })

	h := newTestHub(t, 20*time.Millisecond)

	out1 := connect(t, h, "c1", 32)
	out2 := connect(t, h, "c2", 32)
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}
	h.Inbox() <- Login{ConnID: "c2", Username: "bob"}

	h.Inbox() <- CreateRoom{ConnID: "c1", Name: "table"}
	snap := snapshot(t, h)
	require.Len(t, snap.State.Rooms, 1)
	var roomID string
	for id := range snap.State.Rooms {
		roomID = id
	}

	h.Inbox() <- JoinRoom{ConnID: "c1", RoomID: roomID}
	h.Inbox() <- JoinRoom{ConnID: "c2", RoomID: roomID}

	h.Inbox() <- PlaceBet{ConnID: "c1", Symbol: game.SymbolBau, Amount: 1000}
	h.Inbox() <- PlaceBet{ConnID: "c2", Symbol: game.SymbolTom, Amount: 1000}
	h.Inbox() <- ToggleReady{ConnID: "c1"}
	h.Inbox() <- ToggleReady{ConnID: "c2"}

	roomState := waitFor(t, out2, types.MsgRoomState, time.Second)
	for !roomState.CanRoll {
		roomState = waitFor(t, out2, types.MsgRoomState, time.Second)
	}
	assert.Len(t, roomState.Room.ReadyPlayers, 2)

	h.Inbox() <- RollDice{ConnID: "c1"}
	waitFor(t, out1, types.MsgStartRolling, time.Second)
	waitFor(t, out2, types.MsgStartRolling, time.Second)

	results := waitFor(t, out1, types.MsgDiceResults, time.Second)
	assert.Equal(t, []game.Symbol{game.SymbolBau, game.SymbolCua, game.SymbolBau}, results.Results)
	waitFor(t, out1, types.MsgStopRolling, time.Second)

	snap = snapshot(t, h)
	// alice: 1000 on bau, two matches -> stake back plus 2000.
	assert.Equal(t, 102000, snap.State.Players["c1"].Balance)
	// bob: tom never came up, stake lost.
	assert.Equal(t, 99000, snap.State.Players["c2"].Balance)
	room := snap.State.Rooms[roomID]
	require.NotNil(t, room)
	assert.False(t, room.Playing)
	assert.Empty(t, room.ReadyPlayers)
}

func TestHub_RestoreSessionRekeysConnection(t *testing.T) {
	h := newTestHub(t, time.Second)

	out1 := connect(t, h, "c1", 8)
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}
	waitFor(t, out1, types.MsgGameState, time.Second)

	// New connection presents the prior player id before the old record
	// is cleaned up.
	out2 := connect(t, h, "c2", 8)
	h.Inbox() <- RestoreSession{ConnID: "c2", PriorID: "c1", Username: "alice"}

	restored := waitFor(t, out2, types.MsgLoginSuccess, time.Second)
	require.NotNil(t, restored.Player)
	assert.Equal(t, "c2", restored.Player.ID)
	assert.Equal(t, "alice", restored.Player.Username)

	snap := snapshot(t, h)
	assert.Contains(t, snap.State.Players, "c2")
	assert.NotContains(t, snap.State.Players, "c1")
}

func TestHub_RestoreSessionUnknownIDEmitsNothing(t *testing.T) {
	h := newTestHub(t, time.Second)

	out := connect(t, h, "c1", 8)
	h.Inbox() <- RestoreSession{ConnID: "c1", PriorID: "gone", Username: "alice"}
	recvNoMsg(t, out, 150*time.Millisecond)
}

func TestHub_DisconnectRemovesPlayer(t *testing.T) {
	h := newTestHub(t, time.Second)

	out1 := connect(t, h, "c1", 8)
	out2 := connect(t, h, "c2", 8)
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}
	h.Inbox() <- Login{ConnID: "c2", Username: "bob"}
	waitFor(t, out1, types.MsgGameState, time.Second)

	h.Inbox() <- Disconnect{ConnID: "c1"}

	snap := snapshot(t, h)
	assert.Equal(t, 1, snap.NumConns)
	assert.NotContains(t, snap.State.Players, "c1")

	// The survivor hears about it.
	update := waitFor(t, out2, types.MsgGameState, time.Second)
	for len(update.GameState.Players) != 1 {
		update = waitFor(t, out2, types.MsgGameState, time.Second)
	}
	assert.Contains(t, update.GameState.Players, "c2")
}

func TestHub_DropSlowClient(t *testing.T) {
	h := newTestHub(t, time.Second)

	// Buffer of zero: the first broadcast cannot be delivered.
	out := make(chan types.ServerMessage)
	h.Inbox() <- Connect{ConnID: "c1", Outbox: out}
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}

	snap := snapshot(t, h)
	assert.Equal(t, 0, snap.NumConns)
}

func TestHub_ShutdownClosesOutboxes(t *testing.T) {
	h := newTestHub(t, time.Second)

	out := connect(t, h, "c1", 8)
	h.Inbox() <- Shutdown{}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return // closed, as expected
			}
		case <-deadline:
			t.Fatalf("outbox not closed after shutdown")
		}
	}
}

func TestHub_RollTimerSurvivesRoomMemberDisconnect(t *testing.T) {
	restore := game.Draw
	game.Draw = func() []game.Symbol {
		return []game.Symbol{game.SymbolTom, game.SymbolTom, game.SymbolTom}
	}
	t.Cleanup(func() { game.Draw = restore })

	h := newTestHub(t, 30*time.Millisecond)

	out1 := connect(t, h, "c1", 32)
	out2 := connect(t, h, "c2", 32)
	_ = out2
	h.Inbox() <- Login{ConnID: "c1", Username: "alice"}
	h.Inbox() <- Login{ConnID: "c2", Username: "bob"}
	h.Inbox() <- CreateRoom{ConnID: "c1", Name: "table"}

	snap := snapshot(t, h)
	var roomID string
	for id := range snap.State.Rooms {
		roomID = id
	}
	h.Inbox() <- JoinRoom{ConnID: "c1", RoomID: roomID}
	h.Inbox() <- JoinRoom{ConnID: "c2", RoomID: roomID}
	h.Inbox() <- PlaceBet{ConnID: "c1", Symbol: game.SymbolTom, Amount: 100}
	h.Inbox() <- PlaceBet{ConnID: "c2", Symbol: game.SymbolBau, Amount: 100}
	h.Inbox() <- ToggleReady{ConnID: "c1"}
	h.Inbox() <- ToggleReady{ConnID: "c2"}
	h.Inbox() <- RollDice{ConnID: "c1"}
	waitFor(t, out1, types.MsgStartRolling, time.Second)

	// bob drops mid-delay; the round still resolves for the rest.
	h.Inbox() <- Disconnect{ConnID: "c2"}

	results := waitFor(t, out1, types.MsgDiceResults, time.Second)
	assert.Len(t, results.Results, game.DiceCount)

	snap = snapshot(t, h)
	// alice bet 100 on tom, triple match: stake back plus 300.
	assert.Equal(t, 99900+400, snap.State.Players["c1"].Balance)
	assert.NotContains(t, snap.State.Players, "c2")
}
