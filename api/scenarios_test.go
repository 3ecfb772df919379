/*
scenarios_test.go - Demo scenario loading

Verifies the scenario endpoints populate rules, memberships, grants, and
inventory, and that reloading a scenario does not duplicate grants.
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func loadScenario(t *testing.T, srv http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/load", "admin", LoadScenarioRequest{ScenarioID: id})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 loading %s, got %d: %s", id, rec.Code, rec.Body.String())
	}
}

func TestScenarios_Listed(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/scenarios", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var list []ScenarioDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode scenarios: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 scenarios, got %d", len(list))
	}
}

func TestLoadScenario_SeedsBalances(t *testing.T) {
	srv := newTestServer(t)

	loadScenario(t, srv, "lakeside-cabin")

	year := time.Now().UTC().Year()
	rec := doJSON(t, srv, http.MethodGet,
		fmt.Sprintf("/api/properties/lakeside-cabin/members/alice/balance?year=%d", year), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var dto BalanceDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
		t.Fatalf("Failed to decode balance: %v", err)
	}
	// Two fractions at 13 nights per fraction.
	if dto.AvailableNights != "26" {
		t.Errorf("Expected 26 nights, got %s", dto.AvailableNights)
	}
}

func TestLoadScenario_ReloadDoesNotDuplicateGrants(t *testing.T) {
	srv := newTestServer(t)

	loadScenario(t, srv, "city-apartment")
	loadScenario(t, srv, "city-apartment")

	rec := doJSON(t, srv, http.MethodGet, "/api/properties/city-apartment/members/carla/transactions", "carla", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var txs []TransactionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil {
		t.Fatalf("Failed to decode transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("Expected 2 grants after reload, got %d", len(txs))
	}
}

func TestLoadScenario_Unknown_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/load", "admin", LoadScenarioRequest{ScenarioID: "moon-base"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}
