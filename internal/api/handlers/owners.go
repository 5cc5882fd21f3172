package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/plcoste/syndic/internal/api/middleware"
	"github.com/plcoste/syndic/internal/ledger"
)

// OwnersHandler serves owner creation and share edits.
type OwnersHandler struct {
	registry *ledger.Registry
	log      zerolog.Logger
}

// NewOwnersHandler creates an owners handler.
func NewOwnersHandler(registry *ledger.Registry, log zerolog.Logger) *OwnersHandler {
	return &OwnersHandler{registry: registry, log: log}
}

// CreateOwner handles POST /api/buildings/{id}/owners
func (h *OwnersHandler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Shares    int64  `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	owner, err := h.registry.CreateOwner(r.Context(), buildingID, req.FirstName, req.LastName, req.Shares)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, owner)
}

// SetShares handles PATCH /api/owners/{id}/shares
func (h *OwnersHandler) SetShares(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("id")

	var req struct {
		Shares int64 `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	owner, err := h.registry.SetShare(r.Context(), ownerID, req.Shares)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, owner)
}

// GetAvailableShares handles GET /api/buildings/{id}/shares
func (h *OwnersHandler) GetAvailableShares(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")
	exclude := r.URL.Query().Get("exclude_owner")

	allocated, err := h.registry.TotalAllocatedShares(r.Context(), buildingID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	available, err := h.registry.AvailableShares(r.Context(), buildingID, exclude)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int64{
		"allocated": allocated,
		"available": available,
	})
}
