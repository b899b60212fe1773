package server

import (
	"errors"
	"net/http"

	"github.com/cipherdeck/cipherdeck/internal/table"
)

// errorCode maps engine errors onto stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, table.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, table.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, table.ErrNotInGame):
		return "not_in_game"
	case errors.Is(err, table.ErrAlreadyInGame):
		return "already_in_game"
	case errors.Is(err, table.ErrTableFull):
		return "table_full"
	case errors.Is(err, table.ErrTableNotFound):
		return "table_not_found"
	case errors.Is(err, table.ErrInvalidPlayerIndex):
		return "invalid_player_index"
	case errors.Is(err, table.ErrMinPlayersNotMet):
		return "min_players_not_met"
	case errors.Is(err, table.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, table.ErrInvalidBetAmount):
		return "invalid_bet_amount"
	case errors.Is(err, table.ErrInvalidEncryptedAmount):
		return "invalid_encrypted_amount"
	case errors.Is(err, table.ErrInvalidEncryptedData):
		return "invalid_encrypted_data"
	case errors.Is(err, table.ErrInvalidProofData):
		return "invalid_proof_data"
	case errors.Is(err, table.ErrProofVerificationFailed):
		return "proof_verification_failed"
	case errors.Is(err, table.ErrActionTimeout):
		return "action_timeout"
	default:
		return "internal"
	}
}

// httpStatus maps engine errors onto HTTP statuses for the read views.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, table.ErrTableNotFound), errors.Is(err, table.ErrInvalidPlayerIndex):
		return http.StatusNotFound
	case errors.Is(err, table.ErrInvalidState):
		return http.StatusConflict
	case err != nil && errorCode(err) != "internal":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
