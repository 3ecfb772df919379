/*
Package engine provides the core reservation scheduling and usage-balance
accounting engine for a co-owned property.

PURPOSE:
  This package contains the leaf components the booking orchestrator is
  built from: the append-only balance ledger, the per-property conflict
  index, the date/interval primitives, and the store contracts that
  persistence layers implement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Nights: A night quantity backed by decimal.Decimal
  - Membership: The (property, user) entitlement record
  - PropertyRules: Per-property stay-length constraints
  - Strongly typed identifiers for properties, users, reservations

DESIGN PRINCIPLES:
  1. Immutability: Ledger transactions are never modified, only reversed
  2. Type Safety: Distinct ID types prevent mixing property and user IDs
  3. Explicit lookups: Membership is fetched by (property, user) key; a
     missing membership is a typed error, never a silent zero value

SEE ALSO:
  - ledger.go: Balance accounting over two year buckets
  - conflict.go: Date-interval overlap detection
  - store.go: Persistence and collaborator contracts
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS - Strong typing prevents mixing IDs
// =============================================================================

type PropertyID string

type UserID string

type ReservationID string

type TransactionID string

type ChecklistID string

type PenaltyID string

type ItemID string

// =============================================================================
// NIGHTS - Quantity of entitlement nights
// =============================================================================

// Nights is a count of nights, positive or negative. Ledger deltas are
// negative for debits and positive for grants/credits.
type Nights struct {
	Value decimal.Decimal
}

func NightsOf(n int) Nights {
	return Nights{Value: decimal.NewFromInt(int64(n))}
}

func (n Nights) Add(other Nights) Nights { return Nights{Value: n.Value.Add(other.Value)} }
func (n Nights) Sub(other Nights) Nights { return Nights{Value: n.Value.Sub(other.Value)} }
func (n Nights) Neg() Nights             { return Nights{Value: n.Value.Neg()} }
func (n Nights) Int() int                { return int(n.Value.IntPart()) }

func (n Nights) IsNegative() bool         { return n.Value.IsNegative() }
func (n Nights) LessThan(o Nights) bool   { return n.Value.LessThan(o.Value) }
func (n Nights) Equal(o Nights) bool      { return n.Value.Equal(o.Value) }

func (n Nights) String() string { return n.Value.String() }

// =============================================================================
// MEMBERSHIP - One record per (property, user)
// =============================================================================

type PermissionLevel string

const (
	PermissionMaster PermissionLevel = "master"
	PermissionCommon PermissionLevel = "common"
)

// Membership links a user to a property they co-own. Entitlement balances
// are not stored here; they are derived from the ledger (see ledger.go).
type Membership struct {
	PropertyID    PropertyID
	UserID        UserID
	Permission    PermissionLevel
	FractionCount int
}

func (m Membership) IsMaster() bool { return m.Permission == PermissionMaster }

// MembershipKey is the lookup key for a membership record.
type MembershipKey struct {
	PropertyID PropertyID
	UserID     UserID
}

func (k MembershipKey) String() string {
	return fmt.Sprintf("%s/%s", k.PropertyID, k.UserID)
}

// =============================================================================
// PROPERTY RULES - Read-only to the engine
// =============================================================================

// PropertyRules constrains stay lengths for a property. Rules are mutated
// only by a master member through an external operation; each booking
// attempt reads an immutable snapshot.
type PropertyRules struct {
	PropertyID    PropertyID
	MinStayNights int
	MaxStayNights int

	// NightsPerFraction is the annual entitlement granted per owned
	// fraction. Zero disables automatic allocation for the property.
	NightsPerFraction int
}

// AllowsStay reports whether a stay of the given length is within bounds.
func (r PropertyRules) AllowsStay(nights int) bool {
	return nights >= r.MinStayNights && nights <= r.MaxStayNights
}
