// Package handrank provides the card codes dealt by the engine and the
// deterministic 7-card showdown ranking built on the paulhankin/poker
// evaluator.
package handrank

import (
	"fmt"
	"math/rand"
)

// Card is a card code in 0..51: suit = code/13 in spade, heart, diamond,
// club order; rank = code%13 with ace first (A,2..10,J,Q,K).
type Card uint8

// DeckSize is the number of distinct card codes.
const DeckSize = 52

var suitSymbols = [4]string{"♠", "♥", "♦", "♣"}
var rankSymbols = [13]string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Valid reports whether c is a real card code.
func (c Card) Valid() bool {
	return c < DeckSize
}

// SuitIndex returns 0..3 in spade, heart, diamond, club order.
func (c Card) SuitIndex() int {
	return int(c) / 13
}

// RankIndex returns 0..12 with ace = 0.
func (c Card) RankIndex() int {
	return int(c) % 13
}

// HighValue returns the ace-high rank value 2..14.
func (c Card) HighValue() int {
	if c.RankIndex() == 0 {
		return 14
	}
	return c.RankIndex() + 1
}

func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return suitSymbols[c.SuitIndex()] + rankSymbols[c.RankIndex()]
}

// NewCard builds a card code from suit index 0..3 and rank index 0..12.
func NewCard(suit, rank int) Card {
	return Card(suit*13 + rank)
}

// Deck is a shuffled 52-card deck.
type Deck struct {
	cards [DeckSize]Card
	next  int
	rng   *rand.Rand
}

// NewDeck creates a shuffled deck using the supplied RNG.
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{rng: rng}
	for i := range d.cards {
		d.cards[i] = Card(i)
	}
	d.Shuffle()
	return d
}

// Shuffle reshuffles the full deck and resets the deal position.
func (d *Deck) Shuffle() {
	d.next = 0
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal deals n cards. It panics if the deck is exhausted, which cannot happen
// for a 6-seat hand (12 hole cards + 5 community).
func (d *Deck) Deal(n int) []Card {
	if d.next+n > len(d.cards) {
		panic(fmt.Sprintf("deck exhausted: want %d, have %d", n, len(d.cards)-d.next))
	}
	cards := d.cards[d.next : d.next+n]
	d.next += n
	return cards
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}
