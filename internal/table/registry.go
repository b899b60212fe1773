package table

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
	"github.com/cipherdeck/cipherdeck/internal/tableid"
)

// RegistryConfig carries the shared collaborators for all tables.
type RegistryConfig struct {
	Backend confidential.Backend
	Clock   quartz.Clock
	Bus     EventBus
	Logger  *log.Logger

	// ActionTimeout applies to every table; DefaultActionTimeout when zero.
	ActionTimeout time.Duration
	// Seed makes table shuffles deterministic when non-zero.
	Seed int64
}

type tableEntry struct {
	mu    sync.Mutex
	table *Table
}

// Registry owns every table in the arena. The registry map is guarded by its
// own lock; each table's operations are serialized by a per-table lock, so a
// table has exactly one writer at a time and actions on different tables
// never contend.
type Registry struct {
	cfg    RegistryConfig
	logger *log.Logger
	rng    *rand.Rand

	mu      sync.RWMutex
	tables  map[string]*tableEntry
	players map[confidential.Identity]string // seated player -> table ID
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Clock.Now().UnixNano()
	}
	return &Registry{
		cfg:     cfg,
		logger:  cfg.Logger.WithPrefix("registry"),
		rng:     rand.New(rand.NewSource(seed)),
		tables:  make(map[string]*tableEntry),
		players: make(map[confidential.Identity]string),
	}
}

// Bus exposes the event bus shared by all tables.
func (r *Registry) Bus() EventBus {
	return r.cfg.Bus
}

// CreateTable registers a new table with the given blind schedule and
// returns its ID.
func (r *Registry) CreateTable(smallBlind, bigBlind uint64) (string, error) {
	id := tableid.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Each table shuffles with its own stream split off the registry seed.
	t, err := New(Config{
		ID:            id,
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		ActionTimeout: r.cfg.ActionTimeout,
		Backend:       r.cfg.Backend,
		Clock:         r.cfg.Clock,
		Rand:          rand.New(rand.NewSource(r.rng.Int63())),
		Bus:           r.cfg.Bus,
		Logger:        r.cfg.Logger,
	})
	if err != nil {
		return "", err
	}

	r.tables[id] = &tableEntry{table: t}
	r.logger.Info("table created", "table_id", id, "small_blind", smallBlind, "big_blind", bigBlind)
	r.cfg.Bus.Publish(TableCreatedEvent{
		baseEvent:  baseEvent{tableID: id, timestamp: r.cfg.Clock.Now()},
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
	})
	return id, nil
}

// entry fetches a table entry by ID.
func (r *Registry) entry(id string) (*tableEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tables[id]
	if !ok {
		return nil, ErrTableNotFound
	}
	return e, nil
}

// with runs fn with exclusive access to the table.
func (r *Registry) with(id string, fn func(*Table) error) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.table)
}

// JoinTable seats a player at a table. A player holds at most one seat
// across the whole arena.
func (r *Registry) JoinTable(id string, player confidential.Identity, buyIn confidential.Value) (int, error) {
	// Reserve the player's single arena-wide seat before touching the
	// table, so concurrent joins to different tables cannot both pass.
	r.mu.Lock()
	e, ok := r.tables[id]
	if !ok {
		r.mu.Unlock()
		return 0, ErrTableNotFound
	}
	if _, seated := r.players[player]; seated {
		r.mu.Unlock()
		return 0, ErrAlreadyInGame
	}
	r.players[player] = id
	r.mu.Unlock()

	e.mu.Lock()
	seat, err := e.table.Join(player, buyIn)
	e.mu.Unlock()
	if err != nil {
		r.mu.Lock()
		delete(r.players, player)
		r.mu.Unlock()
		return 0, err
	}
	return seat, nil
}

// LeaveTable gives up the player's seat.
func (r *Registry) LeaveTable(id string, player confidential.Identity) error {
	err := r.with(id, func(t *Table) error {
		return t.Leave(player)
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.players, player)
	r.mu.Unlock()
	return nil
}

// StartGame begins a hand at the table.
func (r *Registry) StartGame(id string, player confidential.Identity) error {
	return r.with(id, func(t *Table) error {
		return t.StartGame(player)
	})
}

// Fold folds the player's hand.
func (r *Registry) Fold(id string, player confidential.Identity) error {
	return r.with(id, func(t *Table) error {
		return t.Fold(player)
	})
}

// Check passes the action.
func (r *Registry) Check(id string, player confidential.Identity) error {
	return r.with(id, func(t *Table) error {
		return t.Check(player)
	})
}

// Call matches the outstanding bet.
func (r *Registry) Call(id string, player confidential.Identity) error {
	return r.with(id, func(t *Table) error {
		return t.Call(player)
	})
}

// Bet raises to the given amount with its encrypted mirror.
func (r *Registry) Bet(id string, player confidential.Identity, amount uint64, encAmount confidential.Value) error {
	return r.with(id, func(t *Table) error {
		return t.Bet(player, amount, encAmount)
	})
}

// RevealCards proves a seat's hole cards at showdown.
func (r *Registry) RevealCards(id string, player confidential.Identity, c1, c2 handrank.Card) error {
	return r.with(id, func(t *Table) error {
		return t.RevealCards(player, c1, c2)
	})
}

// ForceTimeout forces progress on an overdue table.
func (r *Registry) ForceTimeout(id string) error {
	return r.with(id, func(t *Table) error {
		return t.ForceTimeout()
	})
}

// Summary returns a table's public summary.
func (r *Registry) Summary(id string) (Summary, error) {
	var s Summary
	err := r.with(id, func(t *Table) error {
		s = t.Summarize()
		return nil
	})
	return s, err
}

// Seats returns a table's seat views.
func (r *Registry) Seats(id string) ([]SeatView, error) {
	var views []SeatView
	err := r.with(id, func(t *Table) error {
		views = t.SeatsSnapshot()
		return nil
	})
	return views, err
}

// HoleCards returns the sealed hole cards dealt to player at the table.
func (r *Registry) HoleCards(id string, player confidential.Identity) ([2]confidential.Value, error) {
	var cards [2]confidential.Value
	err := r.with(id, func(t *Table) error {
		var err error
		cards, err = t.HoleCardHandles(player)
		return err
	})
	return cards, err
}

// Community returns the publicly revealed board at the table.
func (r *Registry) Community(id string) ([]handrank.Card, error) {
	var cards []handrank.Card
	err := r.with(id, func(t *Table) error {
		cards = t.CommunityCards()
		return nil
	})
	return cards, err
}

// Result returns the outcome of the table's last finished hand.
func (r *Registry) Result(id string) (HandResult, error) {
	var res HandResult
	err := r.with(id, func(t *Table) error {
		var err error
		res, err = t.Result()
		return err
	})
	return res, err
}

// Round returns the table's betting round state.
func (r *Registry) Round(id string) (RoundInfo, error) {
	var info RoundInfo
	err := r.with(id, func(t *Table) error {
		var err error
		info, err = t.Round()
		return err
	})
	return info, err
}

// Summaries lists every table's public summary.
func (r *Registry) Summaries() []Summary {
	r.mu.RLock()
	entries := make([]*tableEntry, 0, len(r.tables))
	for _, e := range r.tables {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		summaries = append(summaries, e.table.Summarize())
		e.mu.Unlock()
	}
	return summaries
}

// TableFor reports which table, if any, a player is seated at.
func (r *Registry) TableFor(player confidential.Identity) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.players[player]
	return id, ok
}
