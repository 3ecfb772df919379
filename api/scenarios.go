/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic
  data for demos. Each scenario creates a property with rules,
  memberships, inventory, and seed entitlement grants.

AVAILABLE SCENARIOS:
  lakeside-cabin:  Two co-owners (one master), 10-item inventory,
                   balances seeded for this year and next
  city-apartment:  Four co-owners with uneven fractions, tight stay
                   rules (2-7 nights)

NOTE:
  Scenarios write into the live store. Only use in development/demo
  environments.

SEE ALSO:
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coown/staybook/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "lakeside-cabin",
		Name:        "Lakeside Cabin",
		Description: "Two co-owners, one master, full inventory, balances for both year buckets",
	},
	{
		ID:          "city-apartment",
		Name:        "City Apartment",
		Description: "Four co-owners with uneven fractions and tight 2-7 night stay rules",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "lakeside-cabin":
		err = loadLakesideCabin(r.Context(), h.Store)
	case "city-apartment":
		err = loadCityApartment(r.Context(), h.Store)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedAllocations funds both modeled year buckets for a membership. The
// allocation idempotency key makes reloading a scenario a no-op for
// buckets that already carry their grant.
func seedAllocations(ctx context.Context, store engine.Store, rules engine.PropertyRules, m engine.Membership, thisYear int) error {
	key := engine.MembershipKey{PropertyID: m.PropertyID, UserID: m.UserID}
	for _, year := range []int{thisYear, thisYear + 1} {
		grant := engine.AllocationTransaction(key, year, rules.NightsPerFraction*m.FractionCount)
		if err := store.AppendTransaction(ctx, grant); err != nil && !errors.Is(err, engine.ErrDuplicateIdempotencyKey) {
			return err
		}
	}
	return nil
}

func loadLakesideCabin(ctx context.Context, store engine.Store) error {
	const propertyID = engine.PropertyID("lakeside-cabin")
	thisYear := engine.Today().Year()

	rules := engine.PropertyRules{
		PropertyID:        propertyID,
		MinStayNights:     1,
		MaxStayNights:     15,
		NightsPerFraction: 13,
	}
	if err := store.SaveRules(ctx, rules); err != nil {
		return err
	}

	members := []engine.Membership{
		{PropertyID: propertyID, UserID: "alice", Permission: engine.PermissionMaster, FractionCount: 2},
		{PropertyID: propertyID, UserID: "bruno", Permission: engine.PermissionCommon, FractionCount: 2},
	}
	for _, m := range members {
		m := m
		if err := store.SaveMembership(ctx, &m); err != nil {
			return err
		}
		if err := seedAllocations(ctx, store, rules, m, thisYear); err != nil {
			return err
		}
	}

	return store.SaveInventory(ctx, propertyID, []engine.ItemID{
		"front-door-keys", "canoe", "life-jackets", "grill", "lawn-mower",
		"tv-remote", "espresso-machine", "linens-set", "firewood-rack", "dock-ladder",
	})
}

func loadCityApartment(ctx context.Context, store engine.Store) error {
	const propertyID = engine.PropertyID("city-apartment")
	thisYear := engine.Today().Year()

	rules := engine.PropertyRules{
		PropertyID:        propertyID,
		MinStayNights:     2,
		MaxStayNights:     7,
		NightsPerFraction: 6,
	}
	if err := store.SaveRules(ctx, rules); err != nil {
		return err
	}

	members := []engine.Membership{
		{PropertyID: propertyID, UserID: "carla", Permission: engine.PermissionMaster, FractionCount: 4},
		{PropertyID: propertyID, UserID: "dmitri", Permission: engine.PermissionCommon, FractionCount: 2},
		{PropertyID: propertyID, UserID: "elena", Permission: engine.PermissionCommon, FractionCount: 1},
		{PropertyID: propertyID, UserID: "farid", Permission: engine.PermissionCommon, FractionCount: 1},
	}
	for _, m := range members {
		m := m
		if err := store.SaveMembership(ctx, &m); err != nil {
			return err
		}
		if err := seedAllocations(ctx, store, rules, m, thisYear); err != nil {
			return err
		}
	}

	return store.SaveInventory(ctx, propertyID, []engine.ItemID{
		"entrance-fob", "mailbox-key", "vacuum", "router", "projector", "sofa-bed",
	})
}
