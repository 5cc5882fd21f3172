package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plcoste/syndic/internal/api/middleware"
	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/store"
)

// BuildingsHandler serves building creation and lookup.
type BuildingsHandler struct {
	repo store.BuildingRepository
	log  zerolog.Logger
}

// NewBuildingsHandler creates a buildings handler.
func NewBuildingsHandler(repo store.BuildingRepository, log zerolog.Logger) *BuildingsHandler {
	return &BuildingsHandler{repo: repo, log: log}
}

// CreateBuilding handles POST /api/buildings
func (h *BuildingsHandler) CreateBuilding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		TotalShares int64  `json:"total_shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Building name is required")
		return
	}

	building := &domain.Building{
		ID:          uuid.New().String(),
		Name:        req.Name,
		TotalShares: req.TotalShares,
		CreatedAt:   time.Now(),
	}
	if err := h.repo.CreateBuilding(r.Context(), building); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, building)
}

// GetBuilding handles GET /api/buildings/{id}
func (h *BuildingsHandler) GetBuilding(w http.ResponseWriter, r *http.Request) {
	building, err := h.repo.GetBuilding(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, building)
}
