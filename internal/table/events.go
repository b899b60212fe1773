package table

import (
	"sync"
	"time"

	"github.com/cipherdeck/cipherdeck/internal/confidential"
	"github.com/cipherdeck/cipherdeck/internal/handrank"
)

// EventType represents a table event type with type safety
type EventType string

// EventType constants for table domain events
const (
	EventTypeTableCreated        EventType = "table_created"
	EventTypePlayerJoined        EventType = "player_joined"
	EventTypePlayerLeft          EventType = "player_left"
	EventTypeGameStarted         EventType = "game_started"
	EventTypeStateChanged        EventType = "state_changed"
	EventTypeCardsDealt          EventType = "cards_dealt"
	EventTypeDecryptionRequested EventType = "decryption_requested"
	EventTypePlayerActioned      EventType = "player_actioned"
	EventTypeTurnChanged         EventType = "turn_changed"
	EventTypeCardsRevealed       EventType = "cards_revealed"
	EventTypeShowdownComplete    EventType = "showdown_complete"
	EventTypeGameEnded           EventType = "game_ended"
	EventTypeGameFinished        EventType = "game_finished"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event represents any event emitted by a table or the registry
type Event interface {
	EventType() EventType
	TableID() string
	Timestamp() time.Time
}

// baseEvent carries the fields shared by every event
type baseEvent struct {
	tableID   string
	timestamp time.Time
}

func (e baseEvent) TableID() string { return e.tableID }

func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// TableCreatedEvent is published when a table is registered
type TableCreatedEvent struct {
	baseEvent
	SmallBlind uint64
	BigBlind   uint64
}

func (e TableCreatedEvent) EventType() EventType { return EventTypeTableCreated }

// PlayerJoinedEvent is published when a player takes a seat
type PlayerJoinedEvent struct {
	baseEvent
	Player    confidential.Identity
	SeatIndex int
}

func (e PlayerJoinedEvent) EventType() EventType { return EventTypePlayerJoined }

// PlayerLeftEvent is published when a player gives up their seat
type PlayerLeftEvent struct {
	baseEvent
	Player confidential.Identity
}

func (e PlayerLeftEvent) EventType() EventType { return EventTypePlayerLeft }

// GameStartedEvent is published when a hand begins
type GameStartedEvent struct {
	baseEvent
	PlayerCount int
	SmallBlind  uint64
	BigBlind    uint64
}

func (e GameStartedEvent) EventType() EventType { return EventTypeGameStarted }

// StateChangedEvent is published on every phase transition
type StateChangedEvent struct {
	baseEvent
	From Phase
	To   Phase
}

func (e StateChangedEvent) EventType() EventType { return EventTypeStateChanged }

// CardsDealtEvent is published when hole cards go out or board cards land
type CardsDealtEvent struct {
	baseEvent
	Phase          Phase
	CommunityCount int
}

func (e CardsDealtEvent) EventType() EventType { return EventTypeCardsDealt }

// DecryptionRequestedEvent is published when the table needs board cards
// opened by the decryption authority
type DecryptionRequestedEvent struct {
	baseEvent
	RequestID uint64
	Handles   []confidential.Handle
}

func (e DecryptionRequestedEvent) EventType() EventType { return EventTypeDecryptionRequested }

// PlayerActionedEvent is published after every accepted player action
type PlayerActionedEvent struct {
	baseEvent
	Player    confidential.Identity
	SeatIndex int
	Action    Action
	Amount    uint64
	PotAfter  uint64
}

func (e PlayerActionedEvent) EventType() EventType { return EventTypePlayerActioned }

// TurnChangedEvent is published when the action moves to a new seat
type TurnChangedEvent struct {
	baseEvent
	SeatIndex int
	Player    confidential.Identity
}

func (e TurnChangedEvent) EventType() EventType { return EventTypeTurnChanged }

// CardsRevealedEvent is published when a seat proves its hole cards
type CardsRevealedEvent struct {
	baseEvent
	Player confidential.Identity
	Cards  [2]handrank.Card
}

func (e CardsRevealedEvent) EventType() EventType { return EventTypeCardsRevealed }

// ShowdownCompleteEvent is published once every live seat has revealed or
// forfeited and the pots are resolved
type ShowdownCompleteEvent struct {
	baseEvent
	WinnerIndex int
	Winner      confidential.Identity
	Rank        handrank.Category
}

func (e ShowdownCompleteEvent) EventType() EventType { return EventTypeShowdownComplete }

// GameEndedEvent is published when a hand ends, by showdown or fold-out
type GameEndedEvent struct {
	baseEvent
	WinnerIndex int
	Winner      confidential.Identity
}

func (e GameEndedEvent) EventType() EventType { return EventTypeGameEnded }

// GameFinishedEvent is published after winnings have been credited
type GameFinishedEvent struct {
	baseEvent
	Winner   confidential.Identity
	Winnings uint64
}

func (e GameFinishedEvent) EventType() EventType { return EventTypeGameFinished }

// EventSubscriber can subscribe to table events
type EventSubscriber interface {
	OnEvent(event Event)
}

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus implementation
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &SimpleEventBus{
		subscribers: make([]EventSubscriber, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event Event) {
	bus.mu.RLock()
	subs := make([]EventSubscriber, len(bus.subscribers))
	copy(subs, bus.subscribers)
	bus.mu.RUnlock()
	for _, subscriber := range subs {
		subscriber.OnEvent(event)
	}
}
