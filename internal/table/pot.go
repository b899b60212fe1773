package table

import "sort"

// Pot is a single pot tier. Eligible holds the seat indices whose hand can
// win this tier; folded contributors fund a tier without being eligible.
type Pot struct {
	Amount       uint64
	Eligible     []int
	MaxPerPlayer uint64 // per-player contribution cap for capped side tiers, 0 for the open tier
}

// PotLedger tracks the main pot and side pots for one hand.
//
// The ledger keeps the invariant that the sum across tiers (plus any
// uncollected street bets) always equals the sum of all seats' total
// contributions. Tiers are ordered lowest cap first, so pots[0] is the main
// pot every live seat is eligible for.
type PotLedger struct {
	pots []Pot
}

// NewPotLedger creates a ledger with an empty main pot open to the given seats.
func NewPotLedger(seats []*Seat) *PotLedger {
	eligible := make([]int, 0, len(seats))
	for i, s := range seats {
		if s.inHand() {
			eligible = append(eligible, i)
		}
	}
	return &PotLedger{
		pots: []Pot{{Eligible: eligible}},
	}
}

// Total returns the amount held across all tiers.
func (pl *PotLedger) Total() uint64 {
	var total uint64
	for _, pot := range pl.pots {
		total += pot.Amount
	}
	return total
}

// Collect sweeps every seat's street bet into the ledger and rebuilds side
// tiers from hand-total contributions. Called at the end of each street.
func (pl *PotLedger) Collect(seats []*Seat) {
	for _, s := range seats {
		if s == nil {
			continue
		}
		if s.CurrentBet > 0 {
			pl.pots[0].Amount += s.CurrentBet
			s.CurrentBet = 0
		}
	}
	pl.rebuildTiers(seats)
}

// rebuildTiers recomputes the tier structure from scratch using each seat's
// TotalBet. With no all-in seats the existing single-tier layout is kept.
func (pl *PotLedger) rebuildTiers(seats []*Seat) {
	caps := make(map[uint64]bool)
	for _, s := range seats {
		if s != nil && s.AllIn && s.TotalBet > 0 {
			caps[s.TotalBet] = true
		}
	}
	if len(caps) == 0 {
		return
	}

	amounts := make([]uint64, 0, len(caps))
	for amount := range caps {
		amounts = append(amounts, amount)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })

	pl.pots = pl.pots[:0]

	var previousCap uint64
	for _, tierCap := range amounts {
		pot := Pot{MaxPerPlayer: tierCap}
		for i, s := range seats {
			if s == nil {
				continue
			}
			if s.inHand() && s.TotalBet > previousCap {
				pot.Eligible = append(pot.Eligible, i)
			}
			contribution := s.TotalBet
			if contribution > tierCap {
				contribution = tierCap
			}
			if contribution > previousCap {
				pot.Amount += contribution - previousCap
			}
		}
		if pot.Amount > 0 && len(pot.Eligible) > 0 {
			pl.pots = append(pl.pots, pot)
		}
		previousCap = tierCap
	}

	// Open tier for chips above the deepest all-in.
	open := Pot{}
	for i, s := range seats {
		if s == nil {
			continue
		}
		if s.inHand() && s.TotalBet > previousCap {
			open.Eligible = append(open.Eligible, i)
		}
		if s.TotalBet > previousCap {
			open.Amount += s.TotalBet - previousCap
		}
	}
	if open.Amount > 0 && len(open.Eligible) > 0 {
		pl.pots = append(pl.pots, open)
	}

	if len(pl.pots) == 0 {
		pl.pots = []Pot{{}}
	}
}

// Pots returns the current tiers. The copy includes uncollected street bets
// in the last tier so the ledger total matches contributions mid-round.
func (pl *PotLedger) Pots(seats []*Seat) []Pot {
	var uncollected uint64
	for _, s := range seats {
		if s != nil {
			uncollected += s.CurrentBet
		}
	}

	result := make([]Pot, len(pl.pots))
	copy(result, pl.pots)
	if uncollected > 0 && len(result) > 0 {
		result[len(result)-1].Amount += uncollected
	}
	return result
}
