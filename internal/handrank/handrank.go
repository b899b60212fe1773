package handrank

import (
	"fmt"
	"math"

	poker "github.com/paulhankin/poker"
)

// Score is a comparable hand strength. Higher is better. Scores from
// Evaluate impose a deterministic total order over all 7-card hands.
type Score int16

// ForfeitScore ranks below every real hand. Assigned to seats that never
// revealed before the showdown timeout.
const ForfeitScore Score = math.MinInt16

// Category is the showdown hand class, weakest first.
type Category uint8

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "high card"
	case Pair:
		return "pair"
	case TwoPair:
		return "two pair"
	case ThreeOfAKind:
		return "three of a kind"
	case Straight:
		return "straight"
	case Flush:
		return "flush"
	case FullHouse:
		return "full house"
	case FourOfAKind:
		return "four of a kind"
	case StraightFlush:
		return "straight flush"
	default:
		return "unknown"
	}
}

var phSuits = [4]poker.Suit{poker.Spade, poker.Heart, poker.Diamond, poker.Club}

func toLibrary(c Card) (poker.Card, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("invalid card code %d", c)
	}
	// Library ranks are 1..13 with ace = 1; our rank index is already
	// ace-first, so it maps by +1.
	return poker.MakeCard(phSuits[c.SuitIndex()], poker.Rank(c.RankIndex()+1))
}

// Evaluate scores the best 5-card hand from two hole cards and five
// community cards.
func Evaluate(hole [2]Card, community [5]Card) (Score, error) {
	var seven [7]poker.Card
	for i, c := range community {
		pc, err := toLibrary(c)
		if err != nil {
			return 0, fmt.Errorf("community card %d: %w", i, err)
		}
		seven[i] = pc
	}
	for i, c := range hole {
		pc, err := toLibrary(c)
		if err != nil {
			return 0, fmt.Errorf("hole card %d: %w", i, err)
		}
		seven[5+i] = pc
	}
	return Score(poker.Eval7(&seven)), nil
}

// Describe returns the library's human description of the best hand.
func Describe(hole [2]Card, community [5]Card) (string, error) {
	cards := make([]poker.Card, 0, 7)
	for _, c := range community {
		pc, err := toLibrary(c)
		if err != nil {
			return "", err
		}
		cards = append(cards, pc)
	}
	for _, c := range hole {
		pc, err := toLibrary(c)
		if err != nil {
			return "", err
		}
		cards = append(cards, pc)
	}
	return poker.Describe(cards)
}

// Classify returns the category of the best 5-card hand within the seven
// cards. The evaluator's score orders hands totally; the category is only
// reported in showdown events.
func Classify(hole [2]Card, community [5]Card) Category {
	cards := make([]Card, 0, 7)
	cards = append(cards, hole[:]...)
	cards = append(cards, community[:]...)

	var rankCount [15]int // indexed by high value 2..14
	var suitCount [4]int
	var present uint16          // bit i set when high value i present
	var suitPresent [4]uint16   // per-suit rank masks for straight flushes
	for _, c := range cards {
		v := c.HighValue()
		rankCount[v]++
		suitCount[c.SuitIndex()]++
		present |= 1 << uint(v)
		suitPresent[c.SuitIndex()] |= 1 << uint(v)
	}

	for s := range suitPresent {
		if suitCount[s] >= 5 && hasStraight(suitPresent[s]) {
			return StraightFlush
		}
	}

	trips, pairs := 0, 0
	for v := 2; v <= 14; v++ {
		switch {
		case rankCount[v] == 4:
			return FourOfAKind
		case rankCount[v] == 3:
			trips++
		case rankCount[v] == 2:
			pairs++
		}
	}
	if trips >= 2 || (trips == 1 && pairs >= 1) {
		return FullHouse
	}
	for _, n := range suitCount {
		if n >= 5 {
			return Flush
		}
	}
	if hasStraight(present) {
		return Straight
	}
	if trips == 1 {
		return ThreeOfAKind
	}
	if pairs >= 2 {
		return TwoPair
	}
	if pairs == 1 {
		return Pair
	}
	return HighCard
}

// hasStraight checks a rank mask (bits 2..14) for five consecutive ranks,
// treating the ace as low as well.
func hasStraight(mask uint16) bool {
	if mask&(1<<14) != 0 {
		mask |= 1 << 1 // wheel
	}
	run := 0
	for v := 1; v <= 14; v++ {
		if mask&(1<<uint(v)) != 0 {
			run++
			if run >= 5 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}
