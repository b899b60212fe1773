package table

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
)

// DefaultActionTimeout is how long a seat may sit on its turn (or on an
// unrevealed showdown hand) before anyone may force it via ForceTimeout.
const DefaultActionTimeout = 5 * time.Minute

// Config carries the collaborators and parameters for a new table.
type Config struct {
	ID         string
	SmallBlind uint64
	BigBlind   uint64

	// ActionTimeout overrides DefaultActionTimeout when positive.
	ActionTimeout time.Duration

	Backend confidential.Backend
	Clock   quartz.Clock
	Rand    *rand.Rand
	Bus     EventBus
	Logger  *log.Logger
}

// Table is a single confidential poker table. It is not safe for concurrent
// use; the registry serializes access with a per-table lock.
type Table struct {
	ID         string
	SmallBlind uint64
	BigBlind   uint64

	Phase Phase
	Seats []*Seat // fixed length MaxSeats, nil entries are empty

	DealerIndex     int
	SmallBlindIndex int
	BigBlindIndex   int
	CurrentIndex    int // -1 when no seat is to act

	Community      [5]confidential.Value
	communityCards [5]handrank.Card
	CommunityCount int

	Ledger  *PotLedger
	betting *bettingRound

	RoundStartTime    time.Time
	lastMoveAt        time.Time
	DecryptionPending bool
	decryptionSeq     uint64
	pendingFrom       Phase // street preceding an unserved decryption request

	result *HandResult

	backend       confidential.Backend
	clock         quartz.Clock
	rng           *rand.Rand
	bus           EventBus
	logger        *log.Logger
	actionTimeout time.Duration
}

// New creates a table. The big blind must be at least twice the small blind.
func New(cfg Config) (*Table, error) {
	if cfg.SmallBlind == 0 || cfg.BigBlind < 2*cfg.SmallBlind {
		return nil, ErrInvalidBetAmount
	}
	if cfg.Backend == nil {
		return nil, errors.New("table: backend is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(cfg.Clock.Now().UnixNano()))
	}
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}

	return &Table{
		ID:            cfg.ID,
		SmallBlind:    cfg.SmallBlind,
		BigBlind:      cfg.BigBlind,
		Phase:         Waiting,
		Seats:         make([]*Seat, MaxSeats),
		DealerIndex:   -1,
		CurrentIndex:  -1,
		backend:       cfg.Backend,
		clock:         cfg.Clock,
		rng:           cfg.Rand,
		bus:           cfg.Bus,
		logger:        cfg.Logger.WithPrefix("table").With("table_id", cfg.ID),
		actionTimeout: cfg.ActionTimeout,
	}, nil
}

// identity is the table's own confidential identity, used as owner of the
// sealed board cards.
func (t *Table) identity() confidential.Identity {
	return confidential.Identity("table:" + t.ID)
}

func (t *Table) base() baseEvent {
	return baseEvent{tableID: t.ID, timestamp: t.clock.Now()}
}

func (t *Table) emit(ev Event) {
	t.bus.Publish(ev)
}

func (t *Table) seatIndexOf(player confidential.Identity) int {
	for i, s := range t.Seats {
		if s != nil && s.Addr == player {
			return i
		}
	}
	return -1
}

// liveSeats counts the seats still contesting the pot.
func (t *Table) liveSeats() int {
	n := 0
	for _, s := range t.Seats {
		if s.inHand() {
			n++
		}
	}
	return n
}

// potTotal is the collected pot plus uncollected street bets.
func (t *Table) potTotal() uint64 {
	if t.Ledger == nil {
		return 0
	}
	total := t.Ledger.Total()
	for _, s := range t.Seats {
		if s != nil {
			total += s.CurrentBet
		}
	}
	return total
}

// mapBackendErr translates confidential-backend failures into the engine's
// error taxonomy.
func mapBackendErr(err error) error {
	switch {
	case errors.Is(err, confidential.ErrProofInvalid):
		return ErrProofVerificationFailed
	case errors.Is(err, confidential.ErrNotAuthorized):
		return ErrInvalidProofData
	case errors.Is(err, confidential.ErrUnknownHandle):
		return ErrInvalidEncryptedData
	case errors.Is(err, confidential.ErrRevealMismatch):
		return ErrProofVerificationFailed
	default:
		return err
	}
}

// Join seats a player with an encrypted buy-in. Joining is only possible
// between hands.
func (t *Table) Join(player confidential.Identity, buyIn confidential.Value) (int, error) {
	if t.Phase != Waiting && t.Phase != Finished {
		return 0, ErrInvalidState
	}
	if t.seatIndexOf(player) != -1 {
		return 0, ErrAlreadyInGame
	}
	if err := t.backend.VerifyInput(buyIn, player); err != nil {
		return 0, mapBackendErr(err)
	}
	chips, err := t.backend.Open(buyIn)
	if err != nil {
		return 0, mapBackendErr(err)
	}
	if chips == 0 {
		return 0, ErrInsufficientBalance
	}

	idx := -1
	for i, s := range t.Seats {
		if s == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, ErrTableFull
	}

	t.Seats[idx] = &Seat{Addr: player, Balance: buyIn, Chips: chips}
	t.logger.Info("player joined", "player", player, "seat", idx, "chips", chips)
	t.emit(PlayerJoinedEvent{baseEvent: t.base(), Player: player, SeatIndex: idx})
	return idx, nil
}

// Leave gives up the player's seat. Between hands the seat empties
// immediately; during a hand the seat is folded out of the running hand and
// vacated when it ends. Chips stay attributed to the player's balance handle.
func (t *Table) Leave(player confidential.Identity) error {
	idx := t.seatIndexOf(player)
	if idx == -1 {
		return ErrNotInGame
	}
	s := t.Seats[idx]

	if t.Phase.betting() || t.Phase == Showdown {
		s.leaving = true
		if s.inHand() {
			wasCurrent := idx == t.CurrentIndex
			t.applyFold(idx)
			t.emit(PlayerLeftEvent{baseEvent: t.base(), Player: player})
			if t.Phase == Showdown {
				t.maybeResolveShowdown()
			} else {
				t.advanceAfterAction(wasCurrent)
			}
			return nil
		}
	} else {
		t.Seats[idx] = nil
	}

	t.logger.Info("player left", "player", player, "seat", idx)
	t.emit(PlayerLeftEvent{baseEvent: t.base(), Player: player})
	return nil
}

// StartGame begins a new hand. Any seated player may start one once at least
// two seats are funded.
func (t *Table) StartGame(caller confidential.Identity) error {
	if t.Phase != Waiting && t.Phase != Finished {
		return ErrInvalidState
	}
	if t.seatIndexOf(caller) == -1 {
		return ErrNotInGame
	}
	playable := 0
	for _, s := range t.Seats {
		if s != nil && s.Chips > 0 {
			playable++
		}
	}
	if playable < MinPlayers {
		return ErrMinPlayersNotMet
	}

	prev := t.Phase
	t.result = nil
	t.DecryptionPending = false
	t.CommunityCount = 0
	t.communityCards = [5]handrank.Card{}
	t.Community = [5]confidential.Value{}
	for _, s := range t.Seats {
		if s != nil {
			s.resetForHand()
		}
	}

	t.DealerIndex, t.SmallBlindIndex, t.BigBlindIndex = rotateBlinds(t.Seats, t.DealerIndex, playable)
	for _, s := range t.Seats {
		if s != nil && s.Chips > 0 {
			s.IsActive = true
		}
	}

	if err := t.deal(); err != nil {
		return err
	}

	t.Ledger = NewPotLedger(t.Seats)
	t.betting = newBettingRound(t.BigBlind)
	t.Seats[t.SmallBlindIndex].commit(t.SmallBlind)
	t.Seats[t.BigBlindIndex].commit(t.BigBlind)
	t.betting.CurrentBet = t.BigBlind

	t.Phase = PreFlop
	now := t.clock.Now()
	t.RoundStartTime = now
	t.lastMoveAt = now
	t.CurrentIndex = nextActionable(t.Seats, (t.BigBlindIndex+1)%MaxSeats)

	t.logger.Info("hand started", "players", playable, "dealer", t.DealerIndex)
	t.emit(GameStartedEvent{baseEvent: t.base(), PlayerCount: playable, SmallBlind: t.SmallBlind, BigBlind: t.BigBlind})
	t.emit(StateChangedEvent{baseEvent: t.base(), From: prev, To: PreFlop})
	t.emit(CardsDealtEvent{baseEvent: t.base(), Phase: PreFlop, CommunityCount: 0})

	if t.CurrentIndex == -1 {
		// Blinds put every seat all-in; run the board out.
		t.advanceStreet()
		return nil
	}
	t.emit(TurnChangedEvent{baseEvent: t.base(), SeatIndex: t.CurrentIndex, Player: t.Seats[t.CurrentIndex].Addr})
	return nil
}

// deal shuffles and seals two hole cards per live seat plus a five-card
// board. The engine never retains hole card plaintexts; board plaintexts are
// only learned back through public decryption as streets open.
func (t *Table) deal() error {
	deck := handrank.NewDeck(t.rng)
	deck.Shuffle()

	for _, s := range t.Seats {
		if !s.inHand() {
			continue
		}
		cards := deck.Deal(2)
		for j, c := range cards {
			v, err := t.backend.Seal(uint64(c), s.Addr)
			if err != nil {
				return fmt.Errorf("seal hole card: %w", err)
			}
			s.HoleCards[j] = v
		}
	}

	board := deck.Deal(5)
	for i, c := range board {
		v, err := t.backend.Seal(uint64(c), t.identity())
		if err != nil {
			return fmt.Errorf("seal board card: %w", err)
		}
		t.Community[i] = v
	}
	return nil
}

// actingSeat validates that player may act right now and returns their seat.
func (t *Table) actingSeat(player confidential.Identity) (int, *Seat, error) {
	if !t.Phase.betting() || t.DecryptionPending {
		return 0, nil, ErrInvalidState
	}
	idx := t.seatIndexOf(player)
	if idx == -1 {
		return 0, nil, ErrNotInGame
	}
	s := t.Seats[idx]
	if !s.canAct() {
		return 0, nil, ErrInvalidState
	}
	if idx != t.CurrentIndex {
		return 0, nil, ErrNotYourTurn
	}
	return idx, s, nil
}

// noteActed marks the seat's turn taken, tracking the big blind's pre-flop
// option.
func (t *Table) noteActed(idx int) {
	t.betting.markActed(idx)
	if t.Phase == PreFlop && idx == t.BigBlindIndex {
		t.betting.BBActed = true
	}
}

// Fold folds the current player's hand.
func (t *Table) Fold(player confidential.Identity) error {
	idx, _, err := t.actingSeat(player)
	if err != nil {
		return err
	}
	t.applyFold(idx)
	t.advanceAfterAction(true)
	return nil
}

// applyFold marks the seat folded and records the action.
func (t *Table) applyFold(idx int) {
	s := t.Seats[idx]
	s.HasFolded = true
	s.IsActive = false
	s.LastAction = ActionFold
	s.LastActionTime = t.clock.Now()
	if t.betting != nil {
		t.noteActed(idx)
	}
	t.emit(PlayerActionedEvent{
		baseEvent: t.base(),
		Player:    s.Addr,
		SeatIndex: idx,
		Action:    ActionFold,
		PotAfter:  t.potTotal(),
	})
}

// Check passes the action without wagering. Only legal when the seat has
// already matched the street's bet.
func (t *Table) Check(player confidential.Identity) error {
	idx, s, err := t.actingSeat(player)
	if err != nil {
		return err
	}
	if s.CurrentBet != t.betting.CurrentBet {
		return ErrInvalidState
	}
	s.LastAction = ActionCheck
	s.LastActionTime = t.clock.Now()
	t.noteActed(idx)
	t.emit(PlayerActionedEvent{
		baseEvent: t.base(),
		Player:    s.Addr,
		SeatIndex: idx,
		Action:    ActionCheck,
		PotAfter:  t.potTotal(),
	})
	t.advanceAfterAction(true)
	return nil
}

// Call matches the outstanding bet, going all-in if the stack is short.
// Only legal when there is an outstanding bet to match.
func (t *Table) Call(player confidential.Identity) error {
	idx, s, err := t.actingSeat(player)
	if err != nil {
		return err
	}
	if t.betting.CurrentBet <= s.CurrentBet {
		return ErrInvalidState
	}
	paid := s.commit(t.betting.CurrentBet - s.CurrentBet)
	s.LastAction = ActionCall
	s.LastActionTime = t.clock.Now()
	t.noteActed(idx)
	t.emit(PlayerActionedEvent{
		baseEvent: t.base(),
		Player:    s.Addr,
		SeatIndex: idx,
		Action:    ActionCall,
		Amount:    paid,
		PotAfter:  t.potTotal(),
	})
	t.advanceAfterAction(true)
	return nil
}

// Bet raises the seat's street contribution to amount. The encrypted mirror
// must carry a valid input proof for the player and decrypt to the same
// amount. Raises below the minimum increment are rejected unless they put
// the seat all-in.
func (t *Table) Bet(player confidential.Identity, amount uint64, encAmount confidential.Value) error {
	idx, s, err := t.actingSeat(player)
	if err != nil {
		return err
	}
	if encAmount.Handle.IsZero() {
		return ErrInvalidEncryptedAmount
	}
	if err := t.backend.VerifyInput(encAmount, player); err != nil {
		err = mapBackendErr(err)
		if errors.Is(err, ErrInvalidEncryptedData) {
			err = ErrInvalidEncryptedAmount
		}
		return err
	}
	mirror, err := t.backend.Open(encAmount)
	if err != nil || mirror != amount {
		return ErrInvalidEncryptedAmount
	}

	if amount <= t.betting.CurrentBet {
		return ErrInvalidBetAmount
	}
	need := amount - s.CurrentBet
	if need > s.Chips {
		return ErrInsufficientBalance
	}
	short := amount < t.betting.CurrentBet+t.betting.MinRaise
	if short && need != s.Chips {
		return ErrInvalidBetAmount
	}
	// A seat still marked acted is only facing action again because of a
	// short all-in, which does not reopen betting: call or fold only.
	if t.betting.Acted[idx] {
		return ErrInvalidBetAmount
	}

	s.commit(need)
	if short {
		t.betting.shortAllInTo(idx, amount)
	} else {
		t.betting.raiseTo(idx, amount)
	}
	if t.Phase == PreFlop && idx == t.BigBlindIndex {
		t.betting.BBActed = true
	}
	s.LastAction = ActionRaise
	s.LastActionTime = t.clock.Now()
	t.emit(PlayerActionedEvent{
		baseEvent: t.base(),
		Player:    s.Addr,
		SeatIndex: idx,
		Action:    ActionRaise,
		Amount:    amount,
		PotAfter:  t.potTotal(),
	})
	t.advanceAfterAction(true)
	return nil
}

// advanceAfterAction settles the table after any accepted action: ends the
// hand on a fold-out, moves to the next street when betting completes, or
// passes the turn along.
func (t *Table) advanceAfterAction(fromCurrent bool) {
	if t.liveSeats() == 1 {
		t.finishFoldOut()
		return
	}
	if t.betting.complete(t.Seats, t.Phase, t.BigBlindIndex) {
		t.advanceStreet()
		return
	}
	if !fromCurrent {
		return
	}
	next := nextActionable(t.Seats, (t.CurrentIndex+1)%MaxSeats)
	if next == -1 {
		t.advanceStreet()
		return
	}
	t.CurrentIndex = next
	t.lastMoveAt = t.clock.Now()
	t.emit(TurnChangedEvent{baseEvent: t.base(), SeatIndex: next, Player: t.Seats[next].Addr})
}

// advanceStreet collects bets, opens the next board cards and hands the turn
// to the first live seat after the dealer. When every remaining seat is
// all-in the board runs out street by street to showdown.
func (t *Table) advanceStreet() {
	t.Ledger.Collect(t.Seats)
	t.betting.resetForStreet()

	from := t.Phase
	switch t.Phase {
	case PreFlop:
		t.Phase = Flop
	case Flop:
		t.Phase = Turn
	case Turn:
		t.Phase = River
	case River:
		t.Phase = Showdown
		now := t.clock.Now()
		t.RoundStartTime = now
		t.lastMoveAt = now
		t.CurrentIndex = -1
		t.logger.Debug("showdown", "pot", t.Ledger.Total())
		t.emit(StateChangedEvent{baseEvent: t.base(), From: from, To: Showdown})
		return
	default:
		return
	}

	t.openStreet(from)
}

// openStreet reveals the board cards owed for the new phase and hands out
// the turn. On a backend failure the table stays pending: no actions are
// accepted until ForceTimeout re-attempts the reveal.
func (t *Table) openStreet(from Phase) error {
	t.pendingFrom = from
	if err := t.revealBoard(); err != nil {
		t.logger.Error("board decryption failed", "error", err)
		return err
	}

	t.emit(StateChangedEvent{baseEvent: t.base(), From: from, To: t.Phase})
	t.emit(CardsDealtEvent{baseEvent: t.base(), Phase: t.Phase, CommunityCount: t.CommunityCount})

	now := t.clock.Now()
	t.RoundStartTime = now
	t.lastMoveAt = now
	t.CurrentIndex = nextActionable(t.Seats, (t.DealerIndex+1)%MaxSeats)
	if t.CurrentIndex == -1 {
		t.advanceStreet()
		return nil
	}
	t.emit(TurnChangedEvent{baseEvent: t.base(), SeatIndex: t.CurrentIndex, Player: t.Seats[t.CurrentIndex].Addr})
	return nil
}

// revealBoard publicly decrypts the board cards owed for the current phase.
// The cards become public knowledge street by street: each handle is granted
// to Everyone before the decrypt, never earlier.
func (t *Table) revealBoard() error {
	target := t.Phase.communityCount()
	if target <= t.CommunityCount {
		return nil
	}

	handles := make([]confidential.Handle, 0, target-t.CommunityCount)
	for i := t.CommunityCount; i < target; i++ {
		handles = append(handles, t.Community[i].Handle)
	}

	t.DecryptionPending = true
	t.decryptionSeq++
	t.emit(DecryptionRequestedEvent{baseEvent: t.base(), RequestID: t.decryptionSeq, Handles: handles})

	for _, h := range handles {
		if err := t.backend.Grant(h, confidential.Everyone); err != nil {
			return err
		}
	}
	values, err := t.backend.PublicDecrypt(handles)
	if err != nil {
		return err
	}
	for i, v := range values {
		c := handrank.Card(v)
		if !c.Valid() {
			return fmt.Errorf("decrypted board card out of range: %d", v)
		}
		t.communityCards[t.CommunityCount+i] = c
	}
	t.CommunityCount = target
	t.DecryptionPending = false
	return nil
}

// ForceTimeout forces progress on an overdue table: the current seat is
// folded during betting, unrevealed hands are forfeited at showdown, and a
// table stuck on an unserved board decryption re-attempts it. Returns
// ErrInvalidState when nothing is overdue, which makes the call idempotent.
func (t *Table) ForceTimeout() error {
	now := t.clock.Now()
	switch {
	case t.Phase.betting():
		if t.DecryptionPending {
			// A failed board decrypt left the table pending; re-attempt
			// it instead of folding anyone.
			if err := t.openStreet(t.pendingFrom); err != nil {
				return mapBackendErr(err)
			}
			return nil
		}
		if t.CurrentIndex == -1 {
			return ErrInvalidState
		}
		if now.Sub(t.lastMoveAt) <= t.actionTimeout {
			return ErrInvalidState
		}
		idx := t.CurrentIndex
		t.logger.Warn("forcing overdue action", "seat", idx, "player", t.Seats[idx].Addr)
		t.applyFold(idx)
		t.advanceAfterAction(true)
		return nil
	case t.Phase == Showdown:
		if now.Sub(t.RoundStartTime) <= t.actionTimeout {
			return ErrInvalidState
		}
		t.forfeitUnrevealed()
		return nil
	default:
		return ErrInvalidState
	}
}

// finishFoldOut ends the hand when a single live seat remains. Hole cards
// stay sealed; the survivor takes the whole pot.
func (t *Table) finishFoldOut() {
	t.Ledger.Collect(t.Seats)

	winnerIdx := -1
	for i, s := range t.Seats {
		if s.inHand() {
			winnerIdx = i
			break
		}
	}
	total := t.Ledger.Total()
	w := t.Seats[winnerIdx]
	w.Chips += total
	t.result = &HandResult{SeatIndex: winnerIdx, Player: w.Addr, Winnings: total}

	from := t.Phase
	t.Phase = Finished
	t.CurrentIndex = -1
	t.logger.Info("hand won by fold-out", "winner", w.Addr, "pot", total)
	t.emit(StateChangedEvent{baseEvent: t.base(), From: from, To: Finished})
	t.emit(GameEndedEvent{baseEvent: t.base(), WinnerIndex: winnerIdx, Winner: w.Addr})
	t.emit(GameFinishedEvent{baseEvent: t.base(), Winner: w.Addr, Winnings: total})
	t.finishHand()
}

// finishHand vacates leaving seats and re-seals each surviving seat's stack
// so the encrypted balance mirror stays current.
func (t *Table) finishHand() {
	for i, s := range t.Seats {
		if s == nil {
			continue
		}
		if s.leaving {
			t.Seats[i] = nil
			continue
		}
		v, err := t.backend.Seal(s.Chips, s.Addr)
		if err != nil {
			t.logger.Warn("balance reseal failed", "player", s.Addr, "error", err)
			continue
		}
		s.Balance = v
	}
}
