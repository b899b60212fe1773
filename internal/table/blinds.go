package table

// nextPlayable returns the index of the first seat at or after from (circular)
// that is occupied and funded, or -1 if none exists. Seats that emptied or
// busted since the previous hand are skipped.
func nextPlayable(seats []*Seat, from int) int {
	n := len(seats)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if s := seats[idx]; s != nil && s.Chips > 0 {
			return idx
		}
	}
	return -1
}

// nextActionable returns the index of the first seat at or after from
// (circular) that can still take a betting action, or -1 if none exists.
func nextActionable(seats []*Seat, from int) int {
	n := len(seats)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if seats[idx].canAct() {
			return idx
		}
	}
	return -1
}

// rotateBlinds advances the dealer button from prevDealer to the next
// playable seat and derives the blind positions. Heads-up the dealer posts
// the small blind and the other seat the big blind; with three or more the
// blinds are the next two playable seats after the dealer.
func rotateBlinds(seats []*Seat, prevDealer int, playable int) (dealer, sb, bb int) {
	dealer = nextPlayable(seats, (prevDealer+1)%len(seats))
	if playable == 2 {
		sb = dealer
		bb = nextPlayable(seats, (dealer+1)%len(seats))
		return dealer, sb, bb
	}
	sb = nextPlayable(seats, (dealer+1)%len(seats))
	bb = nextPlayable(seats, (sb+1)%len(seats))
	return dealer, sb, bb
}
