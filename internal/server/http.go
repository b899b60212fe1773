package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), ErrorData{Code: errorCode(err), Message: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Summaries())
}

// CreateTableRequest is the POST /tables body.
type CreateTableRequest struct {
	SmallBlind uint64 `json:"small_blind"`
	BigBlind   uint64 `json:"big_blind"`
}

// CreateTableResponse carries the new table's ID.
type CreateTableResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorData{Code: "bad_request", Message: err.Error()})
		return
	}
	id, err := s.registry.CreateTable(req.SmallBlind, req.BigBlind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateTableResponse{ID: id})
}

func (s *Server) handleTableSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.registry.Summary(chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTableSeats(w http.ResponseWriter, r *http.Request) {
	seats, err := s.registry.Seats(chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seats)
}

func (s *Server) handleTableCommunity(w http.ResponseWriter, r *http.Request) {
	cards, err := s.registry.Community(chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTableWinner(w http.ResponseWriter, r *http.Request) {
	res, err := s.registry.Result(chi.URLParam(r, "tableID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"seat_index": res.SeatIndex,
		"player":     res.Player,
		"winnings":   res.Winnings,
		"rank":       res.Rank.String(),
		"revealed":   res.Revealed,
	})
}
