package table

// bettingRound holds the per-street wagering state.
type bettingRound struct {
	CurrentBet uint64 // highest street contribution any seat must match
	MinRaise   uint64 // minimum increment for the next raise
	LastRaiser int    // seat index of the last raiser, -1 if unraised
	BBActed    bool   // big blind has used its pre-flop option
	Acted      [MaxSeats]bool
	bigBlind   uint64
}

func newBettingRound(bigBlind uint64) *bettingRound {
	return &bettingRound{
		MinRaise:   bigBlind,
		LastRaiser: -1,
		bigBlind:   bigBlind,
	}
}

// resetForStreet clears the round for a new street. BBActed survives since
// the big blind option only exists pre-flop.
func (br *bettingRound) resetForStreet() {
	br.CurrentBet = 0
	br.MinRaise = br.bigBlind
	br.LastRaiser = -1
	br.Acted = [MaxSeats]bool{}
}

// markActed records that a seat has taken its turn this street.
func (br *bettingRound) markActed(seat int) {
	if seat >= 0 && seat < MaxSeats {
		br.Acted[seat] = true
	}
}

// raiseTo registers a full raise to the given street total by the given
// seat. All other seats must act again.
func (br *bettingRound) raiseTo(seat int, amount uint64) {
	br.MinRaise = amount - br.CurrentBet
	br.CurrentBet = amount
	br.LastRaiser = seat
	br.Acted = [MaxSeats]bool{}
	br.Acted[seat] = true
}

// shortAllInTo registers an all-in below the minimum raise. The bet to
// match grows but betting is not reopened: seats that already acted must
// still match the new amount (complete checks CurrentBet per seat) yet
// keep their acted mark, so they may only call or fold.
func (br *bettingRound) shortAllInTo(seat int, amount uint64) {
	if amount > br.CurrentBet {
		br.CurrentBet = amount
	}
	br.Acted[seat] = true
}

// complete reports whether the street's betting is finished: every seat that
// can still act has matched the current bet and taken a turn, and pre-flop
// the big blind has had its option.
func (br *bettingRound) complete(seats []*Seat, phase Phase, bbIndex int) bool {
	actionable := 0
	for _, s := range seats {
		if s.canAct() {
			actionable++
		}
	}
	if actionable == 0 {
		return true
	}

	for i, s := range seats {
		if !s.canAct() {
			continue
		}
		if s.CurrentBet != br.CurrentBet || !br.Acted[i] {
			return false
		}
	}

	// Unraised pre-flop pots come back around to the big blind.
	if phase == PreFlop && br.LastRaiser == -1 && !br.BBActed {
		if bbIndex >= 0 && bbIndex < len(seats) && seats[bbIndex].canAct() {
			return false
		}
	}

	return true
}
