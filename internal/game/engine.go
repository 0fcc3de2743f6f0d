package game

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var ErrUsernameTaken = errors.New("username already taken")
var ErrInvalidSymbol = errors.New("unknown symbol")
var ErrInvalidAmount = errors.New("bet amount must be greater than 0")
var ErrInsufficientFunds = errors.New("not enough coins to place that bet")
var ErrAlreadyReady = errors.New("cannot place bets while ready")
var ErrNoBetsPlaced = errors.New("you must place a bet before readying up")
var ErrNotEligible = errors.New("room is not ready to roll")
var ErrRoundInProgress = errors.New("round in progress")
var ErrRoomFull = errors.New("room is full")
var ErrUnsupportedCommand = errors.New("unsupported command")

const brokeMessage = "You are out of coins and have been removed from the room!"

type CommandType string

const (
	CmdLogin          CommandType = "Login"
	CmdRestoreSession CommandType = "RestoreSession"
	CmdDisconnect     CommandType = "Disconnect"
	CmdCreateRoom     CommandType = "CreateRoom"
	CmdJoinRoom       CommandType = "JoinRoom"
	CmdLeaveRoom      CommandType = "LeaveRoom"
	CmdPlaceBet       CommandType = "PlaceBet"
	CmdToggleReady    CommandType = "ToggleReady"
	CmdRollDice       CommandType = "RollDice"
	CmdResolveRoll    CommandType = "ResolveRoll"
)

type Command struct {
	Type     CommandType
	ConnID   string
	Username string
	PriorID  string
	Name     string
	RoomID   string
	Symbol   Symbol
	Amount   int
	Results  []Symbol
}

type EventType string

const (
	EvtLoginSuccess    EventType = "LoginSuccess"    // directed
	EvtNotification    EventType = "Notification"    // directed
	EvtRoomSubscribe   EventType = "RoomSubscribe"   // hub bookkeeping
	EvtRoomUnsubscribe EventType = "RoomUnsubscribe" // hub bookkeeping
	EvtScheduleResolve EventType = "ScheduleResolve" // hub arms the round timer
	EvtGameState       EventType = "GameState"       // broadcast to everyone
	EvtRoomState       EventType = "RoomState"       // broadcast to room members
	EvtStartRolling    EventType = "StartRolling"    // room-scoped
	EvtStopRolling     EventType = "StopRolling"     // room-scoped
	EvtDiceResults     EventType = "DiceResults"     // room-scoped
)

type Event struct {
	Type    EventType
	ConnID  string
	RoomID  string
	Player  *Player
	Room    *Room
	CanRoll bool
	Results []Symbol
	Notif   string
	Message string
}

// Apply runs one command against the aggregate and returns the events the
// broadcast layer must emit. A nil, nil return means the command referenced
// state that no longer exists and was dropped on purpose.
func Apply(s *State, cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdLogin:
		return applyLogin(s, cmd)
	case CmdRestoreSession:
		return applyRestoreSession(s, cmd)
	case CmdDisconnect:
		return applyDisconnect(s, cmd)
	case CmdCreateRoom:
		return applyCreateRoom(s, cmd)
	case CmdJoinRoom:
		return applyJoinRoom(s, cmd)
	case CmdLeaveRoom:
		return applyLeaveRoom(s, cmd)
	case CmdPlaceBet:
		return applyPlaceBet(s, cmd)
	case CmdToggleReady:
		return applyToggleReady(s, cmd)
	case CmdRollDice:
		return applyRollDice(s, cmd)
	case CmdResolveRoll:
		return applyResolveRoll(s, cmd)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func applyLogin(s *State, cmd Command) ([]Event, error) {
	for _, p := range s.Players {
		if p.Username == cmd.Username && p.Online {
			return nil, ErrUsernameTaken
		}
	}

	p := &Player{
		ID:         cmd.ConnID,
		Username:   cmd.Username,
		Balance:    StartingBalance,
		Bets:       NewEmptyBets(),
		Online:     true,
		LastActive: time.Now(),
	}
	s.Players[cmd.ConnID] = p

	return []Event{
		{Type: EvtLoginSuccess, ConnID: cmd.ConnID, Player: p},
		{Type: EvtGameState},
	}, nil
}

func applyRestoreSession(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.PriorID]
	if !ok {
		// Stale token: the prior record was already cleaned up. Dropped
		// without an error event so the client falls back to a fresh login.
		return nil, nil
	}

	delete(s.Players, cmd.PriorID)
	p.ID = cmd.ConnID
	p.Online = true
	p.LastActive = time.Now()
	s.Players[cmd.ConnID] = p

	var events []Event
	if p.RoomID != "" {
		if room, ok := s.Rooms[p.RoomID]; ok {
			replaceID(room.Members, cmd.PriorID, cmd.ConnID)
			replaceID(room.ReadyPlayers, cmd.PriorID, cmd.ConnID)
			events = append(events, Event{Type: EvtRoomSubscribe, ConnID: cmd.ConnID, RoomID: p.RoomID})
		}
	}

	return append(events,
		Event{Type: EvtLoginSuccess, ConnID: cmd.ConnID, Player: p},
		Event{Type: EvtGameState},
	), nil
}

func applyDisconnect(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok {
		return nil, nil
	}

	if p.RoomID != "" {
		removeFromRoom(s, p)
	}
	delete(s.Players, cmd.ConnID)

	return []Event{{Type: EvtGameState}}, nil
}

func applyCreateRoom(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok {
		return nil, nil
	}

	if p.RoomID != "" {
		removeFromRoom(s, p)
		p.Ready = false
	}

	room := &Room{
		ID:           uuid.NewString(),
		Name:         cmd.Name,
		Members:      []string{},
		ReadyPlayers: []string{},
		DiceResults:  append([]Symbol(nil), DefaultDice...),
		MaxPlayers:   DefaultMaxPlayers,
		CreatedAt:    time.Now(),
	}
	s.Rooms[room.ID] = room

	// The creator is pointed at the room but not added to its member list;
	// clients send a joinRoom right after.
	p.RoomID = room.ID
	p.LastActive = time.Now()

	return []Event{
		{Type: EvtRoomSubscribe, ConnID: cmd.ConnID, RoomID: room.ID},
		{Type: EvtGameState},
	}, nil
}

func applyJoinRoom(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok {
		return nil, nil
	}
	room, ok := s.Rooms[cmd.RoomID]
	if !ok {
		return nil, nil
	}
	if room.Playing {
		return nil, ErrRoundInProgress
	}

	if p.RoomID != "" && p.RoomID != room.ID {
		removeFromRoom(s, p)
		p.Ready = false
	}

	if !slices.Contains(room.Members, p.ID) {
		if len(room.Members) >= room.MaxPlayers {
			return nil, ErrRoomFull
		}
		room.Members = append(room.Members, p.ID)
	}
	p.RoomID = room.ID
	p.LastActive = time.Now()

	// Broadcast even when membership did not change so a re-join refreshes
	// the client's room view.
	return []Event{
		{Type: EvtRoomSubscribe, ConnID: cmd.ConnID, RoomID: room.ID},
		{Type: EvtRoomState, RoomID: room.ID, Room: room, CanRoll: CanRoll(room)},
		{Type: EvtGameState},
	}, nil
}

func applyLeaveRoom(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok || p.RoomID == "" {
		return nil, nil
	}

	roomID := p.RoomID
	removeFromRoom(s, p)
	p.RoomID = ""
	p.Ready = false
	p.LastActive = time.Now()

	return []Event{
		{Type: EvtRoomUnsubscribe, ConnID: cmd.ConnID, RoomID: roomID},
		{Type: EvtGameState},
	}, nil
}

func applyPlaceBet(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok {
		return nil, nil
	}
	if _, ok := p.Bets[cmd.Symbol]; !ok {
		return nil, ErrInvalidSymbol
	}
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if cmd.Amount > p.Balance {
		return nil, ErrInsufficientFunds
	}
	if p.RoomID != "" {
		if room, ok := s.Rooms[p.RoomID]; ok && room.Playing {
			return nil, ErrRoundInProgress
		}
	}
	if p.Ready {
		return nil, ErrAlreadyReady
	}

	p.Bets[cmd.Symbol] += cmd.Amount
	p.Balance -= cmd.Amount
	p.LastActive = time.Now()

	return []Event{{Type: EvtGameState}}, nil
}

func applyToggleReady(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok || p.RoomID == "" {
		return nil, nil
	}
	room, ok := s.Rooms[p.RoomID]
	if !ok {
		return nil, nil
	}
	if room.Playing {
		return nil, ErrRoundInProgress
	}
	if !p.Ready && TotalBets(p) == 0 {
		return nil, ErrNoBetsPlaced
	}

	p.Ready = !p.Ready
	p.LastActive = time.Now()
	if p.Ready {
		if !slices.Contains(room.ReadyPlayers, p.ID) {
			room.ReadyPlayers = append(room.ReadyPlayers, p.ID)
		}
	} else {
		room.ReadyPlayers = removeID(room.ReadyPlayers, p.ID)
	}

	return []Event{
		{Type: EvtRoomState, RoomID: room.ID, Room: room, CanRoll: CanRoll(room)},
		{Type: EvtGameState},
	}, nil
}

func applyRollDice(s *State, cmd Command) ([]Event, error) {
	p, ok := s.Players[cmd.ConnID]
	if !ok || p.RoomID == "" {
		return nil, nil
	}
	room, ok := s.Rooms[p.RoomID]
	if !ok {
		return nil, nil
	}
	if room.Playing {
		return nil, ErrRoundInProgress
	}
	if !CanRoll(room) {
		return nil, ErrNotEligible
	}

	room.Playing = true

	return []Event{
		{Type: EvtStartRolling, RoomID: room.ID},
		{Type: EvtScheduleResolve, RoomID: room.ID},
	}, nil
}

func applyResolveRoll(s *State, cmd Command) ([]Event, error) {
	room, ok := s.Rooms[cmd.RoomID]
	if !ok || !room.Playing {
		// Room emptied out (or was never rolling) while the timer ran.
		return nil, nil
	}

	results := append([]Symbol(nil), cmd.Results...)
	room.DiceResults = results
	room.Playing = false

	// Payout per symbol: a winning wager comes back with its stake plus
	// wager*matches; a losing stake is gone (it left the balance at bet time).
	for _, id := range room.Members {
		p, ok := s.Players[id]
		if !ok {
			continue
		}
		for sym, wager := range p.Bets {
			if wager == 0 {
				continue
			}
			matches := countMatches(results, sym)
			if matches > 0 {
				p.Balance += wager * (matches + 1)
			}
		}
	}

	for _, id := range room.Members {
		if p, ok := s.Players[id]; ok {
			p.Ready = false
			p.Bets = NewEmptyBets()
		}
	}
	room.ReadyPlayers = room.ReadyPlayers[:0]

	var events []Event
	for _, id := range slices.Clone(room.Members) {
		p, ok := s.Players[id]
		if !ok {
			continue
		}
		if TotalAssets(p) > 0 {
			continue
		}
		events = append(events, evictBroke(s, p)...)
	}

	return append(events,
		Event{Type: EvtDiceResults, RoomID: room.ID, Results: results},
		Event{Type: EvtStopRolling, RoomID: room.ID},
		Event{Type: EvtGameState},
	), nil
}

// evictBroke removes a busted player from their room. The player record
// survives; only room membership is lost.
func evictBroke(s *State, p *Player) []Event {
	if TotalAssets(p) > 0 {
		return nil
	}
	roomID := p.RoomID
	removeFromRoom(s, p)
	p.RoomID = ""
	p.Ready = false
	p.Bets = NewEmptyBets()

	return []Event{
		{Type: EvtRoomUnsubscribe, ConnID: p.ID, RoomID: roomID},
		{Type: EvtNotification, ConnID: p.ID, Notif: "error", Message: brokeMessage},
	}
}

// removeFromRoom drops the player from their room's member and ready lists
// and deletes the room once empty. The player's own fields are untouched.
func removeFromRoom(s *State, p *Player) {
	room, ok := s.Rooms[p.RoomID]
	if !ok {
		return
	}
	room.Members = removeID(room.Members, p.ID)
	room.ReadyPlayers = removeID(room.ReadyPlayers, p.ID)
	if len(room.Members) == 0 {
		delete(s.Rooms, room.ID)
	}
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}

func replaceID(ids []string, old, new string) {
	for i, id := range ids {
		if id == old {
			ids[i] = new
		}
	}
}

func countMatches(results []Symbol, sym Symbol) int {
	count := 0
	for _, r := range results {
		if r == sym {
			count++
		}
	}
	return count
}
