package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/api/middleware"
	"github.com/plcoste/syndic/internal/metering"
)

// MetersHandler serves water meters, readings and loss reports.
type MetersHandler struct {
	svc *metering.Service
	log zerolog.Logger
}

// NewMetersHandler creates a meters handler.
func NewMetersHandler(svc *metering.Service, log zerolog.Logger) *MetersHandler {
	return &MetersHandler{svc: svc, log: log}
}

// CreateMeter handles POST /api/buildings/{id}/meters
func (h *MetersHandler) CreateMeter(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	var spec metering.MeterSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	meter, err := h.svc.CreateMeter(r.Context(), buildingID, spec)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, meter)
}

// DeleteMeter handles DELETE /api/meters/{id}
func (h *MetersHandler) DeleteMeter(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMeter(r.Context(), r.PathValue("id")); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordReading handles POST /api/meters/{id}/readings
func (h *MetersHandler) RecordReading(w http.ResponseWriter, r *http.Request) {
	meterID := r.PathValue("id")

	var req struct {
		Date     string          `json:"date"`
		Index    decimal.Decimal `json:"index"`
		Replaced bool            `json:"replaced"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	reading, err := h.svc.RecordReading(r.Context(), meterID, date, req.Index, req.Replaced)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, reading)
}

// GetLoss handles GET /api/meters/{id}/loss?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *MetersHandler) GetLoss(w http.ResponseWriter, r *http.Request) {
	meterID := r.PathValue("id")

	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "start query parameter is required (YYYY-MM-DD)")
		return
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "end query parameter is required (YYYY-MM-DD)")
		return
	}

	loss, err := h.svc.UnaccountedLoss(r.Context(), meterID, start, end)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loss)
}
