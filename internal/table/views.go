package table

import (
	"time"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
)

// Summary is a point-in-time public view of a table.
type Summary struct {
	ID                string   `json:"id"`
	Phase             string   `json:"phase"`
	SmallBlind        uint64   `json:"small_blind"`
	BigBlind          uint64   `json:"big_blind"`
	PlayerCount       int      `json:"player_count"`
	ActivePlayers     int      `json:"active_players"`
	CurrentIndex      int      `json:"current_index"`
	DealerIndex       int      `json:"dealer_index"`
	SmallBlindIndex   int      `json:"small_blind_index"`
	BigBlindIndex     int      `json:"big_blind_index"`
	Pot               uint64   `json:"pot"`
	CommunityCount    int      `json:"community_count"`
	CommunityCards    []string `json:"community_cards"`
	DecryptionPending bool     `json:"decryption_pending"`
}

// SeatView is the public view of one seat. Hole cards never appear here;
// only the encrypted balance handle and plaintext wagers are public.
type SeatView struct {
	Index       int                   `json:"index"`
	Player      confidential.Identity `json:"player"`
	Chips       uint64                `json:"chips"`
	Balance     string                `json:"balance_handle"`
	CurrentBet  uint64                `json:"current_bet"`
	TotalBet    uint64                `json:"total_bet"`
	Active      bool                  `json:"active"`
	Folded      bool                  `json:"folded"`
	AllIn       bool                  `json:"all_in"`
	LastAction  string                `json:"last_action"`
	HasRevealed bool                  `json:"has_revealed"`
}

// RoundInfo is the public view of the street in progress.
type RoundInfo struct {
	CurrentBet     uint64    `json:"current_bet"`
	MinRaise       uint64    `json:"min_raise"`
	LastRaiser     int       `json:"last_raiser"`
	Complete       bool      `json:"complete"`
	RoundStartTime time.Time `json:"round_start_time"`
}

// Summarize returns the table's public summary.
func (t *Table) Summarize() Summary {
	players, active := 0, 0
	for _, s := range t.Seats {
		if s == nil {
			continue
		}
		players++
		if s.IsActive {
			active++
		}
	}
	cards := make([]string, 0, t.CommunityCount)
	for i := 0; i < t.CommunityCount; i++ {
		cards = append(cards, t.communityCards[i].String())
	}
	return Summary{
		ID:                t.ID,
		Phase:             t.Phase.String(),
		SmallBlind:        t.SmallBlind,
		BigBlind:          t.BigBlind,
		PlayerCount:       players,
		ActivePlayers:     active,
		CurrentIndex:      t.CurrentIndex,
		DealerIndex:       t.DealerIndex,
		SmallBlindIndex:   t.SmallBlindIndex,
		BigBlindIndex:     t.BigBlindIndex,
		Pot:               t.potTotal(),
		CommunityCount:    t.CommunityCount,
		CommunityCards:    cards,
		DecryptionPending: t.DecryptionPending,
	}
}

// SeatsSnapshot returns the occupied seats in index order.
func (t *Table) SeatsSnapshot() []SeatView {
	views := make([]SeatView, 0, MaxSeats)
	for i, s := range t.Seats {
		if s == nil {
			continue
		}
		views = append(views, SeatView{
			Index:       i,
			Player:      s.Addr,
			Chips:       s.Chips,
			Balance:     s.Balance.Handle.String(),
			CurrentBet:  s.CurrentBet,
			TotalBet:    s.TotalBet,
			Active:      s.IsActive,
			Folded:      s.HasFolded,
			AllIn:       s.AllIn,
			LastAction:  s.LastAction.String(),
			HasRevealed: s.HasRevealed,
		})
	}
	return views
}

// HoleCardHandles returns the sealed hole cards dealt to the player in the
// current hand. Only the seat owner may fetch them.
func (t *Table) HoleCardHandles(player confidential.Identity) ([2]confidential.Value, error) {
	idx := t.seatIndexOf(player)
	if idx == -1 {
		return [2]confidential.Value{}, ErrNotInGame
	}
	s := t.Seats[idx]
	if s.HoleCards[0].Handle.IsZero() {
		return [2]confidential.Value{}, ErrInvalidState
	}
	return s.HoleCards, nil
}

// RevealedCards returns the cards a seat has proven at showdown.
func (t *Table) RevealedCards(index int) ([2]handrank.Card, error) {
	if index < 0 || index >= MaxSeats || t.Seats[index] == nil {
		return [2]handrank.Card{}, ErrInvalidPlayerIndex
	}
	s := t.Seats[index]
	if !s.HasRevealed {
		return [2]handrank.Card{}, ErrInvalidState
	}
	return s.RevealedCards, nil
}

// CommunityCards returns the publicly revealed board so far.
func (t *Table) CommunityCards() []handrank.Card {
	cards := make([]handrank.Card, t.CommunityCount)
	copy(cards, t.communityCards[:t.CommunityCount])
	return cards
}

// Result returns the outcome of the last hand.
func (t *Table) Result() (HandResult, error) {
	if t.Phase != Finished || t.result == nil {
		return HandResult{}, ErrInvalidState
	}
	return *t.result, nil
}

// Round returns the state of the betting street in progress.
func (t *Table) Round() (RoundInfo, error) {
	if t.betting == nil || !t.Phase.betting() {
		return RoundInfo{}, ErrInvalidState
	}
	return RoundInfo{
		CurrentBet:     t.betting.CurrentBet,
		MinRaise:       t.betting.MinRaise,
		LastRaiser:     t.betting.LastRaiser,
		Complete:       t.betting.complete(t.Seats, t.Phase, t.BigBlindIndex),
		RoundStartTime: t.RoundStartTime,
	}, nil
}

// Pots returns the pot tiers, including uncollected street bets.
func (t *Table) Pots() []Pot {
	if t.Ledger == nil {
		return nil
	}
	return t.Ledger.Pots(t.Seats)
}

// CanBet reports whether the player could cover a raise to amount.
func (t *Table) CanBet(player confidential.Identity, amount uint64) bool {
	idx := t.seatIndexOf(player)
	if idx == -1 {
		return false
	}
	s := t.Seats[idx]
	return s.canAct() && amount <= s.Chips+s.CurrentBet
}
