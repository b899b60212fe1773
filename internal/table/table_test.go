package table

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/coder/quartz"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
)

func ident(s string) confidential.Identity {
	return confidential.Identity(s)
}

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func sealFor(t *testing.T, b *confidential.FakeBackend, player confidential.Identity, v uint64) confidential.Value {
	t.Helper()
	val, err := b.Seal(v, player)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return val
}

// newTestTable creates a 10/20 table seating one player per stack.
func newTestTable(t *testing.T, clk quartz.Clock, stacks ...uint64) (*Table, *confidential.FakeBackend, []confidential.Identity) {
	t.Helper()
	backend := confidential.NewFakeBackend()
	tbl, err := New(Config{
		ID:         "test-table",
		SmallBlind: 10,
		BigBlind:   20,
		Backend:    backend,
		Clock:      clk,
		Rand:       rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	players := make([]confidential.Identity, 0, len(stacks))
	for i, stack := range stacks {
		p := ident(fmt.Sprintf("player%d", i))
		if _, err := tbl.Join(p, sealFor(t, backend, p, stack)); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
		players = append(players, p)
	}
	return tbl, backend, players
}

// openHole decrypts a seat's own sealed hole cards, the way a client would
// through the user-decrypt path.
func openHole(t *testing.T, b *confidential.FakeBackend, tbl *Table, p confidential.Identity) [2]handrank.Card {
	t.Helper()
	vals, err := tbl.HoleCardHandles(p)
	if err != nil {
		t.Fatalf("hole card handles for %s: %v", p, err)
	}
	var cards [2]handrank.Card
	for i, v := range vals {
		raw, err := b.Open(v)
		if err != nil {
			t.Fatalf("open hole card: %v", err)
		}
		cards[i] = handrank.Card(raw)
	}
	return cards
}

func totalChips(tbl *Table) uint64 {
	var total uint64
	for _, s := range tbl.Seats {
		if s != nil {
			total += s.Chips + s.CurrentBet
		}
	}
	if tbl.Ledger != nil {
		total += tbl.Ledger.Total()
	}
	return total
}

// checkDownHeadsUp calls pre-flop and checks every street to showdown.
// Seat 0 is the dealer/small blind on the first hand.
func checkDownHeadsUp(t *testing.T, tbl *Table, p0, p1 confidential.Identity) {
	t.Helper()
	mustDo(t, tbl.Call(p0))
	mustDo(t, tbl.Check(p1))
	for street := 0; street < 3; street++ {
		mustDo(t, tbl.Check(p1))
		mustDo(t, tbl.Check(p0))
	}
	if tbl.Phase != Showdown {
		t.Fatalf("expected showdown, got %s", tbl.Phase)
	}
}

func TestJoinValidation(t *testing.T) {
	t.Parallel()

	tbl, backend, players := newTestTable(t, nil, 1000, 1000)

	if _, err := tbl.Join(players[0], sealFor(t, backend, players[0], 500)); !errors.Is(err, ErrAlreadyInGame) {
		t.Errorf("duplicate join: got %v, want ErrAlreadyInGame", err)
	}
	if _, err := tbl.Join(ident("broke"), sealFor(t, backend, ident("broke"), 0)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("zero buy-in: got %v, want ErrInsufficientBalance", err)
	}

	// Proof bound to another identity is rejected.
	stolen := sealFor(t, backend, ident("someone-else"), 500)
	if _, err := tbl.Join(ident("thief"), stolen); !errors.Is(err, ErrProofVerificationFailed) {
		t.Errorf("stolen proof: got %v, want ErrProofVerificationFailed", err)
	}

	for i := 2; i < MaxSeats; i++ {
		p := ident(fmt.Sprintf("filler%d", i))
		if _, err := tbl.Join(p, sealFor(t, backend, p, 1000)); err != nil {
			t.Fatalf("join filler: %v", err)
		}
	}
	p := ident("overflow")
	if _, err := tbl.Join(p, sealFor(t, backend, p, 1000)); !errors.Is(err, ErrTableFull) {
		t.Errorf("seventh join: got %v, want ErrTableFull", err)
	}
}

func TestStartGameValidation(t *testing.T) {
	t.Parallel()

	tbl, backend, players := newTestTable(t, nil, 1000)

	if err := tbl.StartGame(players[0]); !errors.Is(err, ErrMinPlayersNotMet) {
		t.Errorf("lone player start: got %v, want ErrMinPlayersNotMet", err)
	}
	if err := tbl.StartGame(ident("stranger")); !errors.Is(err, ErrNotInGame) {
		t.Errorf("stranger start: got %v, want ErrNotInGame", err)
	}
	if err := tbl.Fold(players[0]); !errors.Is(err, ErrInvalidState) {
		t.Errorf("fold before hand: got %v, want ErrInvalidState", err)
	}

	p := ident("player1")
	if _, err := tbl.Join(p, sealFor(t, backend, p, 1000)); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustDo(t, tbl.StartGame(players[0]))

	if err := tbl.StartGame(players[0]); !errors.Is(err, ErrInvalidState) {
		t.Errorf("start during hand: got %v, want ErrInvalidState", err)
	}
	if _, err := tbl.Join(ident("late"), sealFor(t, backend, ident("late"), 1000)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("join during hand: got %v, want ErrInvalidState", err)
	}
}

func TestHeadsUpFoldOut(t *testing.T) {
	t.Parallel()

	tbl, _, players := newTestTable(t, nil, 1000, 1000)
	mustDo(t, tbl.StartGame(players[0]))

	if tbl.Phase != PreFlop {
		t.Fatalf("expected preflop, got %s", tbl.Phase)
	}
	// Heads-up: the dealer posts the small blind and acts first pre-flop.
	if tbl.DealerIndex != 0 || tbl.SmallBlindIndex != 0 || tbl.BigBlindIndex != 1 {
		t.Fatalf("positions wrong: dealer=%d sb=%d bb=%d", tbl.DealerIndex, tbl.SmallBlindIndex, tbl.BigBlindIndex)
	}
	if tbl.CurrentIndex != 0 {
		t.Fatalf("dealer should act first heads-up, got seat %d", tbl.CurrentIndex)
	}

	mustDo(t, tbl.Fold(players[0]))

	if tbl.Phase != Finished {
		t.Fatalf("expected finished, got %s", tbl.Phase)
	}
	res, err := tbl.Result()
	mustDo(t, err)
	if res.SeatIndex != 1 || res.Winnings != 30 {
		t.Errorf("fold-out result wrong: %+v", res)
	}
	if tbl.Seats[0].Chips != 990 || tbl.Seats[1].Chips != 1010 {
		t.Errorf("stacks wrong after fold-out: %d / %d", tbl.Seats[0].Chips, tbl.Seats[1].Chips)
	}
	// The survivor's hand is never shown.
	if res.Revealed {
		t.Error("fold-out winner should not have revealed")
	}
}

func TestBettingValidation(t *testing.T) {
	t.Parallel()

	tbl, backend, players := newTestTable(t, nil, 1000, 1000, 1000)
	mustDo(t, tbl.StartGame(players[0]))

	// Three-handed: seat 0 deals, seat 1 posts 10, seat 2 posts 20, seat 0 opens.
	if tbl.CurrentIndex != 0 {
		t.Fatalf("seat 0 should open, got %d", tbl.CurrentIndex)
	}

	if err := tbl.Call(players[1]); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("out of turn: got %v, want ErrNotYourTurn", err)
	}
	if err := tbl.Fold(ident("stranger")); !errors.Is(err, ErrNotInGame) {
		t.Errorf("stranger action: got %v, want ErrNotInGame", err)
	}
	if err := tbl.Check(players[0]); !errors.Is(err, ErrInvalidState) {
		t.Errorf("check facing a bet: got %v, want ErrInvalidState", err)
	}

	if err := tbl.Bet(players[0], 30, sealFor(t, backend, players[0], 30)); !errors.Is(err, ErrInvalidBetAmount) {
		t.Errorf("under min raise: got %v, want ErrInvalidBetAmount", err)
	}
	if err := tbl.Bet(players[0], 2000, sealFor(t, backend, players[0], 2000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("over stack: got %v, want ErrInsufficientBalance", err)
	}
	if err := tbl.Bet(players[0], 60, sealFor(t, backend, players[0], 50)); !errors.Is(err, ErrInvalidEncryptedAmount) {
		t.Errorf("mirror mismatch: got %v, want ErrInvalidEncryptedAmount", err)
	}
	if err := tbl.Bet(players[0], 60, confidential.Value{}); !errors.Is(err, ErrInvalidEncryptedAmount) {
		t.Errorf("zero mirror: got %v, want ErrInvalidEncryptedAmount", err)
	}
	if err := tbl.Bet(players[0], 60, sealFor(t, backend, players[1], 60)); !errors.Is(err, ErrProofVerificationFailed) {
		t.Errorf("foreign mirror: got %v, want ErrProofVerificationFailed", err)
	}

	// A legal raise moves the action and resets who must act.
	mustDo(t, tbl.Bet(players[0], 60, sealFor(t, backend, players[0], 60)))
	round, err := tbl.Round()
	mustDo(t, err)
	if round.CurrentBet != 60 || round.MinRaise != 40 || round.LastRaiser != 0 {
		t.Errorf("round state wrong after raise: %+v", round)
	}
	if tbl.CurrentIndex != 1 {
		t.Errorf("action should be on seat 1, got %d", tbl.CurrentIndex)
	}

	// Calling with nothing outstanding is rejected.
	mustDo(t, tbl.Call(players[1]))
	mustDo(t, tbl.Call(players[2]))
	if tbl.Phase != Flop {
		t.Fatalf("expected flop, got %s", tbl.Phase)
	}
	if tbl.CurrentIndex != 1 {
		t.Fatalf("first seat after dealer acts post-flop, got %d", tbl.CurrentIndex)
	}
	if err := tbl.Call(players[1]); !errors.Is(err, ErrInvalidState) {
		t.Errorf("call with no bet: got %v, want ErrInvalidState", err)
	}

	if got := totalChips(tbl); got != 3000 {
		t.Errorf("chips not conserved: %d", got)
	}
}

func TestHeadsUpShowdown(t *testing.T) {
	t.Parallel()

	tbl, backend, players := newTestTable(t, nil, 1000, 1000)
	mustDo(t, tbl.StartGame(players[0]))

	hole0 := openHole(t, backend, tbl, players[0])
	hole1 := openHole(t, backend, tbl, players[1])

	checkDownHeadsUp(t, tbl, players[0], players[1])
	if tbl.CommunityCount != 5 {
		t.Fatalf("expected full board, got %d cards", tbl.CommunityCount)
	}

	// Revealing before showdown is impossible by construction here, but a
	// wrong claim must be rejected and leave the seat unrevealed.
	wrong := handrank.Card((uint8(hole0[0]) + 1) % handrank.DeckSize)
	if wrong == hole0[1] {
		wrong = handrank.Card((uint8(hole0[0]) + 2) % handrank.DeckSize)
	}
	if err := tbl.RevealCards(players[0], wrong, hole0[1]); !errors.Is(err, ErrProofVerificationFailed) {
		t.Fatalf("wrong claim: got %v, want ErrProofVerificationFailed", err)
	}

	mustDo(t, tbl.RevealCards(players[0], hole0[0], hole0[1]))
	if err := tbl.RevealCards(players[0], hole0[0], hole0[1]); !errors.Is(err, ErrInvalidState) {
		t.Errorf("duplicate reveal: got %v, want ErrInvalidState", err)
	}
	mustDo(t, tbl.RevealCards(players[1], hole1[0], hole1[1]))

	if tbl.Phase != Finished {
		t.Fatalf("expected finished, got %s", tbl.Phase)
	}

	var board [5]handrank.Card
	copy(board[:], tbl.CommunityCards())
	s0, err := handrank.Evaluate(hole0, board)
	mustDo(t, err)
	s1, err := handrank.Evaluate(hole1, board)
	mustDo(t, err)

	res, err := tbl.Result()
	mustDo(t, err)
	switch {
	case s0 > s1:
		if res.SeatIndex != 0 || tbl.Seats[0].Chips != 1020 {
			t.Errorf("seat 0 should win whole pot: %+v chips=%d", res, tbl.Seats[0].Chips)
		}
	case s1 > s0:
		if res.SeatIndex != 1 || tbl.Seats[1].Chips != 1020 {
			t.Errorf("seat 1 should win whole pot: %+v chips=%d", res, tbl.Seats[1].Chips)
		}
	default:
		if tbl.Seats[0].Chips != 1000 || tbl.Seats[1].Chips != 1000 {
			t.Errorf("split pot should return stacks: %d / %d", tbl.Seats[0].Chips, tbl.Seats[1].Chips)
		}
	}
	if got := totalChips(tbl); got != 2000 {
		t.Errorf("chips not conserved: %d", got)
	}
	if !res.Revealed {
		t.Error("showdown winner should be marked revealed")
	}
}

func TestThreeWayAllInSidePots(t *testing.T) {
	t.Parallel()

	tbl, backend, players := newTestTable(t, nil, 100, 300, 300)
	mustDo(t, tbl.StartGame(players[0]))

	hole := make([][2]handrank.Card, 3)
	for i, p := range players {
		hole[i] = openHole(t, backend, tbl, p)
	}

	mustDo(t, tbl.Bet(players[0], 100, sealFor(t, backend, players[0], 100)))
	mustDo(t, tbl.Bet(players[1], 300, sealFor(t, backend, players[1], 300)))
	mustDo(t, tbl.Call(players[2]))

	// Everyone is all-in: the board runs out and the table waits on reveals.
	if tbl.Phase != Showdown {
		t.Fatalf("expected showdown after all-in run-out, got %s", tbl.Phase)
	}
	if tbl.CommunityCount != 5 {
		t.Fatalf("expected full board, got %d cards", tbl.CommunityCount)
	}

	pots := tbl.Pots()
	if len(pots) != 2 {
		t.Fatalf("expected main and side pot, got %d tiers", len(pots))
	}
	if pots[0].Amount != 300 || pots[1].Amount != 400 {
		t.Errorf("tier amounts wrong: %d / %d", pots[0].Amount, pots[1].Amount)
	}
	if len(pots[0].Eligible) != 3 || len(pots[1].Eligible) != 2 {
		t.Errorf("tier eligibility wrong: %v / %v", pots[0].Eligible, pots[1].Eligible)
	}

	for i, p := range players {
		mustDo(t, tbl.RevealCards(p, hole[i][0], hole[i][1]))
	}
	if tbl.Phase != Finished {
		t.Fatalf("expected finished, got %s", tbl.Phase)
	}

	var board [5]handrank.Card
	copy(board[:], tbl.CommunityCards())
	scores := make([]handrank.Score, 3)
	for i := range players {
		s, err := handrank.Evaluate(hole[i], board)
		mustDo(t, err)
		scores[i] = s
	}

	// Replay the payout: main pot to the best of all three, side pot to the
	// best of the two deep stacks.
	expected := []uint64{0, 0, 0}
	payTier := func(amount uint64, eligible []int) {
		best := handrank.ForfeitScore
		for _, i := range eligible {
			if scores[i] > best {
				best = scores[i]
			}
		}
		var winners []int
		for _, i := range eligible {
			if scores[i] == best {
				winners = append(winners, i)
			}
		}
		share := amount / uint64(len(winners))
		for _, w := range winners {
			expected[w] += share
		}
		expected[winners[0]] += amount % uint64(len(winners))
	}
	payTier(300, []int{0, 1, 2})
	payTier(400, []int{1, 2})

	for i := range players {
		if tbl.Seats[i].Chips != expected[i] {
			t.Errorf("seat %d chips = %d, want %d", i, tbl.Seats[i].Chips, expected[i])
		}
	}
	if got := totalChips(tbl); got != 700 {
		t.Errorf("chips not conserved: %d", got)
	}
}

func TestShortAllInDoesNotReopenBetting(t *testing.T) {
	t.Parallel()

	tbl, backend, players := newTestTable(t, nil, 1000, 1000, 130)
	mustDo(t, tbl.StartGame(players[0]))

	mustDo(t, tbl.Bet(players[0], 100, sealFor(t, backend, players[0], 100)))
	mustDo(t, tbl.Call(players[1]))

	// Seat 2's whole stack is below a full re-raise. The amount to match
	// grows but the betting round is not reopened.
	mustDo(t, tbl.Bet(players[2], 130, sealFor(t, backend, players[2], 130)))

	round, err := tbl.Round()
	mustDo(t, err)
	if round.CurrentBet != 130 {
		t.Errorf("current bet should be 130, got %d", round.CurrentBet)
	}
	if round.MinRaise != 80 {
		t.Errorf("short all-in should not move min raise, got %d", round.MinRaise)
	}
	if round.LastRaiser != 0 {
		t.Errorf("short all-in should not become the last raiser, got %d", round.LastRaiser)
	}

	// Seats that already acted may only call or fold the extra amount.
	if err := tbl.Bet(players[0], 300, sealFor(t, backend, players[0], 300)); !errors.Is(err, ErrInvalidBetAmount) {
		t.Errorf("re-raise facing a short all-in: got %v, want ErrInvalidBetAmount", err)
	}
	mustDo(t, tbl.Call(players[0]))
	mustDo(t, tbl.Call(players[1]))

	if tbl.Phase != Flop {
		t.Fatalf("street should close once the short all-in is matched, got %s", tbl.Phase)
	}
	if got := totalChips(tbl); got != 2130 {
		t.Errorf("chips not conserved: %d", got)
	}
}

func TestLeaveDuringHandFoldsAndVacates(t *testing.T) {
	t.Parallel()

	tbl, _, players := newTestTable(t, nil, 1000, 1000, 1000)
	mustDo(t, tbl.StartGame(players[0]))

	// Seat 0 is current; leaving folds it and passes the action.
	mustDo(t, tbl.Leave(players[0]))
	if tbl.Seats[0] == nil {
		t.Fatal("seat should stay occupied until the hand ends")
	}
	if !tbl.Seats[0].HasFolded {
		t.Error("leaver should be folded out of the hand")
	}
	if tbl.CurrentIndex != 1 {
		t.Errorf("action should pass to seat 1, got %d", tbl.CurrentIndex)
	}

	mustDo(t, tbl.Fold(players[1]))
	if tbl.Phase != Finished {
		t.Fatalf("expected fold-out finish, got %s", tbl.Phase)
	}
	if tbl.Seats[0] != nil {
		t.Error("leaver's seat should vacate when the hand ends")
	}

	res, err := tbl.Result()
	mustDo(t, err)
	if res.SeatIndex != 2 {
		t.Errorf("seat 2 should take the pot, got %d", res.SeatIndex)
	}
}

func TestLeaveBetweenHands(t *testing.T) {
	t.Parallel()

	tbl, _, players := newTestTable(t, nil, 1000, 1000)
	mustDo(t, tbl.Leave(players[0]))
	if tbl.Seats[0] != nil {
		t.Error("seat should vacate immediately between hands")
	}
	if err := tbl.Leave(players[0]); !errors.Is(err, ErrNotInGame) {
		t.Errorf("double leave: got %v, want ErrNotInGame", err)
	}
}

func TestBlindRotationAcrossHands(t *testing.T) {
	t.Parallel()

	tbl, _, players := newTestTable(t, nil, 1000, 1000, 1000)

	mustDo(t, tbl.StartGame(players[0]))
	if tbl.DealerIndex != 0 || tbl.SmallBlindIndex != 1 || tbl.BigBlindIndex != 2 {
		t.Fatalf("hand 1 positions wrong: %d/%d/%d", tbl.DealerIndex, tbl.SmallBlindIndex, tbl.BigBlindIndex)
	}
	mustDo(t, tbl.Fold(players[0]))
	mustDo(t, tbl.Fold(players[1]))

	// Seat 1 leaves; the button skips the vacated seat and the remaining
	// two seats play heads-up, dealer posting the small blind.
	mustDo(t, tbl.Leave(players[1]))
	mustDo(t, tbl.StartGame(players[0]))
	if tbl.DealerIndex != 2 || tbl.SmallBlindIndex != 2 || tbl.BigBlindIndex != 0 {
		t.Fatalf("hand 2 positions wrong: %d/%d/%d", tbl.DealerIndex, tbl.SmallBlindIndex, tbl.BigBlindIndex)
	}
}
