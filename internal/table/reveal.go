package table

import (
	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
)

// HandResult records the outcome of a finished hand. For fold-out wins the
// hand is never shown and Rank is meaningless.
type HandResult struct {
	SeatIndex int
	Player    confidential.Identity
	Winnings  uint64
	Rank      handrank.Category
	Revealed  bool
}

// RevealCards lets a live seat prove its hole cards at showdown. Each
// claimed plaintext is checked against the sealed handle dealt to the seat;
// a mismatch on either card rejects the whole reveal. A seat reveals at most
// once per hand. When the last live seat has revealed the pots resolve.
func (t *Table) RevealCards(player confidential.Identity, c1, c2 handrank.Card) error {
	if t.Phase != Showdown {
		return ErrInvalidState
	}
	idx := t.seatIndexOf(player)
	if idx == -1 {
		return ErrNotInGame
	}
	s := t.Seats[idx]
	if !s.inHand() || s.HasRevealed {
		return ErrInvalidState
	}
	if !c1.Valid() || !c2.Valid() || c1 == c2 {
		return ErrInvalidEncryptedData
	}
	if err := t.backend.VerifyReveal(s.HoleCards[0].Handle, uint64(c1), player); err != nil {
		return mapBackendErr(err)
	}
	if err := t.backend.VerifyReveal(s.HoleCards[1].Handle, uint64(c2), player); err != nil {
		return mapBackendErr(err)
	}

	s.HasRevealed = true
	s.RevealedCards = [2]handrank.Card{c1, c2}
	t.logger.Debug("cards revealed", "player", player, "cards", [2]string{c1.String(), c2.String()})
	t.emit(CardsRevealedEvent{baseEvent: t.base(), Player: player, Cards: s.RevealedCards})

	t.maybeResolveShowdown()
	return nil
}

// maybeResolveShowdown resolves the pots once no live seat still owes a
// reveal. A showdown reduced to a single live seat ends like a fold-out.
func (t *Table) maybeResolveShowdown() {
	if t.Phase != Showdown {
		return
	}
	if t.liveSeats() == 1 {
		t.finishFoldOut()
		return
	}
	for _, s := range t.Seats {
		if s.inHand() && !s.HasRevealed {
			return
		}
	}
	t.resolveShowdown()
}

// forfeitUnrevealed resolves an overdue showdown. Seats that never revealed
// keep contesting the pots but with the forfeit score, so any revealed hand
// beats them.
func (t *Table) forfeitUnrevealed() {
	for i, s := range t.Seats {
		if s.inHand() && !s.HasRevealed {
			t.logger.Warn("showdown reveal forfeited", "seat", i, "player", s.Addr)
		}
	}
	t.resolveShowdown()
}

// resolveShowdown scores every live seat, pays out each pot tier to its best
// eligible hand (split evenly, odd chip to the winner nearest the dealer's
// left) and finishes the hand.
func (t *Table) resolveShowdown() {
	var scores [MaxSeats]handrank.Score
	for i, s := range t.Seats {
		if !s.inHand() {
			continue
		}
		scores[i] = handrank.ForfeitScore
		if !s.HasRevealed {
			continue
		}
		sc, err := handrank.Evaluate(s.RevealedCards, t.communityCards)
		if err != nil {
			t.logger.Error("hand evaluation failed", "seat", i, "error", err)
			continue
		}
		scores[i] = sc
	}

	var winnings [MaxSeats]uint64
	var mainWinner = -1
	pots := t.Ledger.Pots(t.Seats)
	for tier, pot := range pots {
		eligible := make([]int, 0, len(pot.Eligible))
		for _, i := range pot.Eligible {
			if t.Seats[i].inHand() {
				eligible = append(eligible, i)
			}
		}
		if len(eligible) == 0 {
			// Every contributor left mid-showdown; the tier goes to the
			// remaining live seats.
			for i, s := range t.Seats {
				if s.inHand() {
					eligible = append(eligible, i)
				}
			}
		}

		best := handrank.ForfeitScore
		for _, i := range eligible {
			if scores[i] > best {
				best = scores[i]
			}
		}
		winners := make([]int, 0, len(eligible))
		for _, i := range eligible {
			if scores[i] == best {
				winners = append(winners, i)
			}
		}

		share := pot.Amount / uint64(len(winners))
		remainder := pot.Amount % uint64(len(winners))
		odd := t.nearestToDealerLeft(winners)
		for _, w := range winners {
			winnings[w] += share
		}
		winnings[odd] += remainder

		if tier == 0 {
			mainWinner = odd
		}
	}

	for i, amt := range winnings {
		if amt > 0 {
			t.Seats[i].Chips += amt
		}
	}

	w := t.Seats[mainWinner]
	t.result = &HandResult{
		SeatIndex: mainWinner,
		Player:    w.Addr,
		Winnings:  winnings[mainWinner],
		Revealed:  w.HasRevealed,
	}
	if w.HasRevealed {
		t.result.Rank = handrank.Classify(w.RevealedCards, t.communityCards)
	}

	t.Phase = Finished
	t.CurrentIndex = -1
	t.logger.Info("showdown complete", "winner", w.Addr, "winnings", winnings[mainWinner], "rank", t.result.Rank)
	t.emit(ShowdownCompleteEvent{baseEvent: t.base(), WinnerIndex: mainWinner, Winner: w.Addr, Rank: t.result.Rank})
	t.emit(StateChangedEvent{baseEvent: t.base(), From: Showdown, To: Finished})
	t.emit(GameEndedEvent{baseEvent: t.base(), WinnerIndex: mainWinner, Winner: w.Addr})
	t.emit(GameFinishedEvent{baseEvent: t.base(), Winner: w.Addr, Winnings: winnings[mainWinner]})
	t.finishHand()
}

// nearestToDealerLeft picks from seat indices the one closest to the
// dealer's left, the conventional recipient of an odd chip.
func (t *Table) nearestToDealerLeft(indices []int) int {
	bestIdx := indices[0]
	bestDist := MaxSeats
	for _, i := range indices {
		dist := (i - t.DealerIndex - 1 + 2*MaxSeats) % MaxSeats
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	return bestIdx
}
