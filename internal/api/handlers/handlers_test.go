package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plcoste/syndic/internal/allocation"
	"github.com/plcoste/syndic/internal/archive"
	"github.com/plcoste/syndic/internal/cache"
	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/fiscal"
	"github.com/plcoste/syndic/internal/ledger"
	"github.com/plcoste/syndic/internal/metering"
	"github.com/plcoste/syndic/internal/store/memory"
)

// newTestServer wires the full API surface against the in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db := memory.New()
	log := zerolog.Nop()
	fiscalSvc := fiscal.NewService(db, db, db, db, db, allocation.NewDefault(), archive.Discard{}, log)
	registry := ledger.NewRegistry(db, db, db)
	meteringSvc := metering.NewService(db, db, db)
	situationCache := cache.NewRAMCache(time.Minute)

	buildings := NewBuildingsHandler(db, log)
	owners := NewOwnersHandler(registry, log)
	ledgerH := NewLedgerHandler(fiscalSvc, situationCache, log)
	meters := NewMetersHandler(meteringSvc, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/buildings", buildings.CreateBuilding)
	mux.HandleFunc("GET /api/buildings/{id}", buildings.GetBuilding)
	mux.HandleFunc("POST /api/buildings/{id}/owners", owners.CreateOwner)
	mux.HandleFunc("GET /api/buildings/{id}/shares", owners.GetAvailableShares)
	mux.HandleFunc("PATCH /api/owners/{id}/shares", owners.SetShares)
	mux.HandleFunc("GET /api/buildings/{id}/situation", ledgerH.GetSituation)
	mux.HandleFunc("POST /api/buildings/{id}/transactions", ledgerH.CreateTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", ledgerH.PatchTransaction)
	mux.HandleFunc("POST /api/buildings/{id}/exercises", ledgerH.CreateExercise)
	mux.HandleFunc("POST /api/exercises/{id}/close", ledgerH.CloseExercise)
	mux.HandleFunc("POST /api/buildings/{id}/meters", meters.CreateMeter)
	mux.HandleFunc("DELETE /api/meters/{id}", meters.DeleteMeter)
	mux.HandleFunc("POST /api/meters/{id}/readings", meters.RecordReading)
	mux.HandleFunc("GET /api/meters/{id}/loss", meters.GetLoss)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response of %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func createBuilding(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	var building domain.Building
	status := doJSON(t, http.MethodPost, srv.URL+"/api/buildings",
		map[string]interface{}{"name": "Résidence des Lilas"}, &building)
	if status != http.StatusCreated {
		t.Fatalf("create building returned %d", status)
	}
	return building.ID
}

func createOwner(t *testing.T, srv *httptest.Server, buildingID, first, last string, shares int64) string {
	t.Helper()
	var owner domain.Owner
	status := doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/owners",
		map[string]interface{}{"first_name": first, "last_name": last, "shares": shares}, &owner)
	if status != http.StatusCreated {
		t.Fatalf("create owner returned %d", status)
	}
	return owner.ID
}

func TestAPI_LedgerLifecycle(t *testing.T) {
	srv := newTestServer(t)
	buildingID := createBuilding(t, srv)
	createOwner(t, srv, buildingID, "Alice", "Martin", 600)
	createOwner(t, srv, buildingID, "Bruno", "Petit", 400)

	var ex domain.FiscalExercise
	status := doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/exercises",
		map[string]interface{}{"year": 2024}, &ex)
	if status != http.StatusCreated {
		t.Fatalf("create exercise returned %d", status)
	}

	status = doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/transactions",
		map[string]interface{}{
			"date":        "2024-02-01T00:00:00Z",
			"description": "Entretien ascenseur",
			"kind":        "charge",
			"amount":      "1000",
		}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create transaction returned %d", status)
	}

	var sit fiscal.Situation
	status = doJSON(t, http.MethodGet, srv.URL+"/api/buildings/"+buildingID+"/situation?year=2024", nil, &sit)
	if status != http.StatusOK {
		t.Fatalf("situation returned %d", status)
	}
	if len(sit.Owners) != 2 {
		t.Fatalf("situation has %d owners, want 2", len(sit.Owners))
	}
	if sit.Owners[0].ChargesAllocated.String() != "600" {
		t.Errorf("first owner charges = %s, want 600", sit.Owners[0].ChargesAllocated)
	}

	// Wrong confirmation phrase is a 422 and leaves the exercise open.
	status = doJSON(t, http.MethodPost, srv.URL+"/api/exercises/"+ex.ID+"/close",
		map[string]string{"confirmation": "CLOSE 2023"}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("bad confirmation returned %d, want 422", status)
	}

	status = doJSON(t, http.MethodPost, srv.URL+"/api/exercises/"+ex.ID+"/close",
		map[string]string{"confirmation": "CLOSE 2024"}, nil)
	if status != http.StatusOK {
		t.Fatalf("close returned %d", status)
	}

	// The closed exercise rejects further writes with 409.
	status = doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/transactions",
		map[string]interface{}{
			"date":        "2024-06-01T00:00:00Z",
			"description": "Trop tard",
			"kind":        "charge",
			"amount":      "10",
		}, nil)
	if status != http.StatusConflict {
		t.Fatalf("write to closed exercise returned %d, want 409", status)
	}
}

func TestAPI_ShareCapacity(t *testing.T) {
	srv := newTestServer(t)
	buildingID := createBuilding(t, srv)
	createOwner(t, srv, buildingID, "Alice", "Martin", 600)
	createOwner(t, srv, buildingID, "Bruno", "Petit", 400)

	status := doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/owners",
		map[string]interface{}{"first_name": "Chloé", "last_name": "Roy", "shares": 500}, nil)
	if status != http.StatusConflict {
		t.Fatalf("capacity overrun returned %d, want 409", status)
	}

	var shares map[string]int64
	status = doJSON(t, http.MethodGet, srv.URL+"/api/buildings/"+buildingID+"/shares", nil, &shares)
	if status != http.StatusOK {
		t.Fatalf("shares returned %d", status)
	}
	if shares["allocated"] != 1000 || shares["available"] != 0 {
		t.Errorf("shares = %v, want allocated=1000 available=0", shares)
	}
}

func TestAPI_Meters(t *testing.T) {
	srv := newTestServer(t)
	buildingID := createBuilding(t, srv)

	var principal domain.WaterMeter
	status := doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/meters",
		map[string]interface{}{
			"serial":     "P-100",
			"type":       "principal",
			"assignment": map[string]string{"target": "building-collective"},
		}, &principal)
	if status != http.StatusCreated {
		t.Fatalf("create principal returned %d", status)
	}

	var divisional domain.WaterMeter
	status = doJSON(t, http.MethodPost, srv.URL+"/api/buildings/"+buildingID+"/meters",
		map[string]interface{}{
			"serial":              "D-1",
			"type":                "divisional",
			"parent_principal_id": principal.ID,
			"assignment":          map[string]string{"target": "none"},
		}, &divisional)
	if status != http.StatusCreated {
		t.Fatalf("create divisional returned %d", status)
	}

	record := func(meterID, date, index string) int {
		return doJSON(t, http.MethodPost, srv.URL+"/api/meters/"+meterID+"/readings",
			map[string]interface{}{"date": date, "index": index}, nil)
	}
	if s := record(principal.ID, "2024-01-01", "1000"); s != http.StatusCreated {
		t.Fatalf("reading returned %d", s)
	}
	if s := record(principal.ID, "2024-01-31", "1200"); s != http.StatusCreated {
		t.Fatalf("reading returned %d", s)
	}
	if s := record(divisional.ID, "2024-01-01", "0"); s != http.StatusCreated {
		t.Fatalf("reading returned %d", s)
	}
	if s := record(divisional.ID, "2024-01-31", "170"); s != http.StatusCreated {
		t.Fatalf("reading returned %d", s)
	}

	// A decreasing index is a 422.
	if s := record(principal.ID, "2024-02-15", "1100"); s != http.StatusUnprocessableEntity {
		t.Fatalf("non-monotonic reading returned %d, want 422", s)
	}

	var loss metering.Loss
	url := fmt.Sprintf("%s/api/meters/%s/loss?start=2024-01-01&end=2024-01-31", srv.URL, principal.ID)
	if s := doJSON(t, http.MethodGet, url, nil, &loss); s != http.StatusOK {
		t.Fatalf("loss returned %d", s)
	}
	if loss.Loss.String() != "30" {
		t.Errorf("loss = %s, want 30", loss.Loss)
	}

	// Deleting a principal with children is a 400.
	if s := doJSON(t, http.MethodDelete, srv.URL+"/api/meters/"+principal.ID, nil, nil); s != http.StatusBadRequest {
		t.Fatalf("delete principal with children returned %d, want 400", s)
	}
	if s := doJSON(t, http.MethodDelete, srv.URL+"/api/meters/"+divisional.ID, nil, nil); s != http.StatusNoContent {
		t.Fatalf("delete divisional returned %d, want 204", s)
	}
	if s := doJSON(t, http.MethodDelete, srv.URL+"/api/meters/"+principal.ID, nil, nil); s != http.StatusNoContent {
		t.Fatalf("delete principal returned %d, want 204", s)
	}
}

func TestAPI_NotFound(t *testing.T) {
	srv := newTestServer(t)

	if s := doJSON(t, http.MethodGet, srv.URL+"/api/buildings/missing", nil, nil); s != http.StatusNotFound {
		t.Fatalf("missing building returned %d, want 404", s)
	}
	if s := doJSON(t, http.MethodGet, srv.URL+"/api/buildings/missing/situation?year=2024", nil, nil); s != http.StatusNotFound {
		t.Fatalf("missing exercise returned %d, want 404", s)
	}
}
