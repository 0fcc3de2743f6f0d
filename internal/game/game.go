package game

import (
	"math/rand/v2"
	"time"
)

type Symbol string

const (
	SymbolBau Symbol = "bau" // gourd
	SymbolCua Symbol = "cua" // crab
	SymbolTom Symbol = "tom" // shrimp
	SymbolCa  Symbol = "ca"  // fish
	SymbolGa  Symbol = "ga"  // rooster
	SymbolNai Symbol = "nai" // deer
)

var Symbols = []Symbol{SymbolBau, SymbolCua, SymbolTom, SymbolCa, SymbolGa, SymbolNai}

const (
	StartingBalance   = 100000
	DefaultMaxPlayers = 10
	DiceCount         = 3
)

// Shown on the board before any round has been rolled in a room.
var DefaultDice = []Symbol{SymbolBau, SymbolCua, SymbolTom}

type Player struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Balance    int            `json:"money"`
	Bets       map[Symbol]int `json:"bets"`
	Online     bool           `json:"isOnline"`
	LastActive time.Time      `json:"lastActive"`
	RoomID     string         `json:"roomId,omitempty"`
	Ready      bool           `json:"isReady"`
}

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Members      []string  `json:"players"`
	ReadyPlayers []string  `json:"readyPlayers"`
	DiceResults  []Symbol  `json:"diceResults"`
	Playing      bool      `json:"isPlaying"`
	MaxPlayers   int       `json:"maxPlayers"`
	CreatedAt    time.Time `json:"createdAt"`
}

// State is the process-wide aggregate. The hub goroutine is its only
// writer; everything handed to other goroutines is a Clone.
type State struct {
	Players map[string]*Player `json:"players"`
	Rooms   map[string]*Room   `json:"rooms"`
}

func NewState() *State {
	return &State{
		Players: make(map[string]*Player),
		Rooms:   make(map[string]*Room),
	}
}

func NewEmptyBets() map[Symbol]int {
	bets := make(map[Symbol]int, len(Symbols))
	for _, s := range Symbols {
		bets[s] = 0
	}
	return bets
}

func ParseSymbol(s string) (Symbol, bool) {
	for _, sym := range Symbols {
		if Symbol(s) == sym {
			return sym, true
		}
	}
	return "", false
}

func TotalBets(p *Player) int {
	total := 0
	for _, amount := range p.Bets {
		total += amount
	}
	return total
}

// TotalAssets is the player's balance plus every outstanding wager.
func TotalAssets(p *Player) int {
	return p.Balance + TotalBets(p)
}

// CanRoll reports whether a room is eligible to start a round.
func CanRoll(r *Room) bool {
	return len(r.Members) >= 2 && len(r.ReadyPlayers) == len(r.Members)
}

// Draw samples the dice uniformly with replacement. Package var so tests
// can pin the result.
var Draw = func() []Symbol {
	results := make([]Symbol, DiceCount)
	for i := range results {
		results[i] = Symbols[rand.IntN(len(Symbols))]
	}
	return results
}

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Bets = make(map[Symbol]int, len(p.Bets))
	for s, amount := range p.Bets {
		cp.Bets[s] = amount
	}
	return &cp
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Members = append([]string(nil), r.Members...)
	cp.ReadyPlayers = append([]string(nil), r.ReadyPlayers...)
	cp.DiceResults = append([]Symbol(nil), r.DiceResults...)
	return &cp
}

func (s *State) Clone() *State {
	cp := NewState()
	for id, p := range s.Players {
		cp.Players[id] = p.Clone()
	}
	for id, r := range s.Rooms {
		cp.Rooms[id] = r.Clone()
	}
	return cp
}
