// Package handlers exposes the ledger over REST/JSON. Handlers decode,
// delegate to the services, and map domain errors to HTTP statuses;
// nothing in here touches ledger state directly.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/plcoste/syndic/internal/api/middleware"
	"github.com/plcoste/syndic/internal/cache"
	"github.com/plcoste/syndic/internal/fiscal"
)

// LedgerHandler serves situations, transactions and exercises.
type LedgerHandler struct {
	svc   *fiscal.Service
	cache cache.SituationCache
	log   zerolog.Logger
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(svc *fiscal.Service, c cache.SituationCache, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, cache: c, log: log}
}

// GetSituation handles GET /api/buildings/{id}/situation?year=Y
func (h *LedgerHandler) GetSituation(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "year query parameter is required")
		return
	}

	if sit, ok := h.cache.Get(buildingID, year); ok {
		middleware.WriteJSON(w, http.StatusOK, sit)
		return
	}

	sit, err := h.svc.Situation(r.Context(), buildingID, year)
	if err != nil {
		h.log.Error().Err(err).Str("building_id", buildingID).Int("year", year).Msg("Failed to compute situation")
		middleware.WriteDomainError(w, err)
		return
	}
	h.cache.Set(buildingID, year, sit)
	middleware.WriteJSON(w, http.StatusOK, sit)
}

// CreateTransaction handles POST /api/buildings/{id}/transactions
func (h *LedgerHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	var in fiscal.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.svc.AddTransaction(r.Context(), buildingID, in)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.cache.Invalidate(buildingID, tx.Date.Year())
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// PatchTransaction handles PATCH /api/transactions/{id}
func (h *LedgerHandler) PatchTransaction(w http.ResponseWriter, r *http.Request) {
	txID := r.PathValue("id")

	var patch fiscal.TransactionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.svc.UpdateTransaction(r.Context(), txID, patch)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.cache.Invalidate(tx.BuildingID, tx.Date.Year())
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// CreateExercise handles POST /api/buildings/{id}/exercises
func (h *LedgerHandler) CreateExercise(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	var req struct {
		Year int `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ex, err := h.svc.CreateExercise(r.Context(), buildingID, req.Year)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, ex)
}

// CloseExercise handles POST /api/exercises/{id}/close
func (h *LedgerHandler) CloseExercise(w http.ResponseWriter, r *http.Request) {
	exerciseID := r.PathValue("id")

	var req struct {
		Confirmation string `json:"confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ex, err := h.svc.CloseExercise(r.Context(), exerciseID, req.Confirmation)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.cache.Invalidate(ex.BuildingID, ex.Year)
	h.cache.Invalidate(ex.BuildingID, ex.Year+1)
	middleware.WriteJSON(w, http.StatusOK, ex)
}
