package table

// Phase is the lifecycle state of a table. A hand walks Waiting through
// Finished in order, except that a fold-out or an all-seats-forfeit can jump
// straight to Finished.
type Phase uint8

const (
	Waiting Phase = iota
	PreFlop
	Flop
	Turn
	River
	Showdown
	Finished
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case PreFlop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case Showdown:
		return "showdown"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// betting reports whether player actions are accepted in this phase.
func (p Phase) betting() bool {
	return p >= PreFlop && p <= River
}

// communityCount is the number of board cards visible in this phase.
func (p Phase) communityCount() int {
	switch p {
	case Flop:
		return 3
	case Turn:
		return 4
	case River, Showdown, Finished:
		return 5
	default:
		return 0
	}
}

// Action is a player's most recent move in the current hand.
type Action uint8

const (
	ActionNone Action = iota
	ActionFold
	ActionCheck
	ActionCall
	ActionRaise
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionFold:
		return "fold"
	case ActionCheck:
		return "check"
	case ActionCall:
		return "call"
	case ActionRaise:
		return "raise"
	default:
		return "unknown"
	}
}
