package table

import (
	"time"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
)

const (
	// MaxSeats is the number of seats at a table.
	MaxSeats = 6
	// MinPlayers is the minimum number of funded seats required to start a hand.
	MinPlayers = 2
)

// Seat is one position at a table. Seat indices are stable for the lifetime
// of an occupancy; leaving frees the index for the next joiner.
type Seat struct {
	Addr    confidential.Identity
	Balance confidential.Value // encrypted mirror of Chips, re-sealed after every hand
	Chips   uint64             // accounting authority for wager arithmetic

	HoleCards [2]confidential.Value

	IsActive   bool // dealt into the current hand and not folded
	HasFolded  bool
	AllIn      bool
	CurrentBet uint64 // contribution to the street in progress
	TotalBet   uint64 // contribution to the whole hand

	LastAction     Action
	LastActionTime time.Time

	HasRevealed   bool
	RevealedCards [2]handrank.Card

	leaving bool // leave requested mid-hand; seat is vacated when the hand ends
}

// inHand reports whether the seat still contests the pot.
func (s *Seat) inHand() bool {
	return s != nil && s.IsActive
}

// canAct reports whether the seat can take a betting action.
func (s *Seat) canAct() bool {
	return s.inHand() && !s.AllIn
}

// commit moves chips from the stack into the current street's bet, capping
// at the stack and flagging an all-in when the stack empties.
func (s *Seat) commit(amount uint64) uint64 {
	if amount > s.Chips {
		amount = s.Chips
	}
	s.Chips -= amount
	s.CurrentBet += amount
	s.TotalBet += amount
	if s.Chips == 0 {
		s.AllIn = true
	}
	return amount
}

// resetForHand prepares the seat for a new hand.
func (s *Seat) resetForHand() {
	s.HoleCards = [2]confidential.Value{}
	s.IsActive = false
	s.HasFolded = false
	s.AllIn = false
	s.CurrentBet = 0
	s.TotalBet = 0
	s.LastAction = ActionNone
	s.LastActionTime = time.Time{}
	s.HasRevealed = false
	s.RevealedCards = [2]handrank.Card{}
}
