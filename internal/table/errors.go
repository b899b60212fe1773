package table

import "errors"

// Engine error taxonomy. Every rejection is synchronous and leaves table
// state unchanged; callers are expected to match with errors.Is.
var (
	// ErrInvalidState rejects an operation that is not legal in the current
	// phase or has already happened.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotYourTurn rejects an action from a seat other than the current one.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNotInGame rejects callers without a seat at the table.
	ErrNotInGame = errors.New("not in game")
	// ErrAlreadyInGame rejects a join from a player already seated at a table.
	ErrAlreadyInGame = errors.New("already in game")
	// ErrTableFull rejects a join when all seats are occupied.
	ErrTableFull = errors.New("table full")
	// ErrTableNotFound rejects operations on unknown table IDs.
	ErrTableNotFound = errors.New("table not found")
	// ErrInvalidPlayerIndex rejects views of out-of-range seat indices.
	ErrInvalidPlayerIndex = errors.New("invalid player index")
	// ErrMinPlayersNotMet rejects startGame with fewer than two funded seats.
	ErrMinPlayersNotMet = errors.New("minimum players not met")
	// ErrInsufficientBalance rejects wagers beyond the seat's stack.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidBetAmount rejects malformed wager amounts and blind schedules.
	ErrInvalidBetAmount = errors.New("invalid bet amount")
	// ErrInvalidEncryptedAmount rejects a wager whose ciphertext mirror is unusable.
	ErrInvalidEncryptedAmount = errors.New("invalid encrypted amount")
	// ErrInvalidEncryptedData rejects malformed confidential payloads.
	ErrInvalidEncryptedData = errors.New("invalid encrypted data")
	// ErrInvalidProofData rejects proofs bound to the wrong identity or context.
	ErrInvalidProofData = errors.New("invalid proof data")
	// ErrProofVerificationFailed rejects proofs that do not verify.
	ErrProofVerificationFailed = errors.New("proof verification failed")
	// ErrActionTimeout reports that an action was forced because the seat ran
	// out of time.
	ErrActionTimeout = errors.New("action timeout")
)
