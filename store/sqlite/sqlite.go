/*
Package sqlite provides a SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.Store (ledger, reservations, checklists, penalties,
  and the collaborator contracts) on SQLite. The same patterns apply to
  PostgreSQL with minor dialect differences.

ATOMIC COMMITS:
  CommitReservation and CancelReservation run inside a database
  transaction. Either every row lands or none does - a reservation is
  never visible without its debit, a cancellation never without its
  credit.

BACKSTOP CHECKS (defense in depth):
  - CommitReservation re-runs the overlap query inside its transaction
    and aborts with DateConflictError on a hit.
  - The ledger's idempotency_key UNIQUE index refuses duplicate debits
    and credits at the schema level.
  - checklists carries UNIQUE(reservation_id, phase), so a duplicate
    submission fails even if the application check is bypassed.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches the transactions table. Corrections
  are credit transactions.

WAL MODE:
  The database opens with WAL for concurrent readers and better crash
  recovery.

USAGE:
  st, err := sqlite.New("./data/staybook.db")   // or ":memory:"
  defer st.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/coown/staybook/engine"
)

const dateLayout = "2006-01-02"

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ engine.Store = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection avoids SQLITE_BUSY on concurrent writers; the
	// engine serializes per-property writes above this layer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Entitlement ledger (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		delta TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_membership_year
		ON transactions(property_id, user_id, year);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		debit_year INTEGER NOT NULL,
		nights_charged INTEGER NOT NULL,
		guest_count INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		cancelled_at TEXT,
		completed_at TEXT
	);

	-- Hot path: overlap checks scan occupying reservations by property
	CREATE INDEX IF NOT EXISTS idx_reservations_property_start
		ON reservations(property_id, start_date)
		WHERE status IN ('confirmed', 'completed');

	CREATE TABLE IF NOT EXISTS checklists (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		items_json TEXT NOT NULL,
		note TEXT,
		submitted_by TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		UNIQUE(reservation_id, phase)
	);

	CREATE TABLE IF NOT EXISTS penalties (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		details_json TEXT,
		active INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		issued_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_penalties_active
		ON penalties(property_id, user_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		min_stay_nights INTEGER NOT NULL,
		max_stay_nights INTEGER NOT NULL,
		nights_per_fraction INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS memberships (
		property_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		permission TEXT NOT NULL,
		fraction_count INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (property_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS inventory_items (
		property_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		PRIMARY KEY (property_id, item_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, tx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, tx engine.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (id, property_id, user_id, year, delta, tx_type, reference_id, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.ID), string(tx.PropertyID), string(tx.UserID), tx.Year,
		tx.Delta.Value.String(), string(tx.Type), tx.ReferenceID, tx.Reason,
		nullable(tx.IdempotencyKey), tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && isUniqueViolation(err) {
		return engine.ErrDuplicateIdempotencyKey
	}
	return err
}

func (s *Store) LoadTransactions(ctx context.Context, key engine.MembershipKey, year int) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx, `
		SELECT id, property_id, user_id, year, delta, tx_type, reference_id, reason, idempotency_key, created_at
		FROM transactions WHERE property_id = ? AND user_id = ? AND year = ?
		ORDER BY created_at, id`,
		string(key.PropertyID), string(key.UserID), year)
}

func (s *Store) LoadAllTransactions(ctx context.Context, key engine.MembershipKey) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTransactions(ctx, `
		SELECT id, property_id, user_id, year, delta, tx_type, reference_id, reason, idempotency_key, created_at
		FROM transactions WHERE property_id = ? AND user_id = ?
		ORDER BY created_at, id`,
		string(key.PropertyID), string(key.UserID))
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]engine.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Transaction
	for rows.Next() {
		var tx engine.Transaction
		var id, propertyID, userID, txType, deltaStr, createdAt string
		var reference, reason, idemKey sql.NullString
		if err := rows.Scan(&id, &propertyID, &userID, &tx.Year, &deltaStr, &txType, &reference, &reason, &idemKey, &createdAt); err != nil {
			return nil, err
		}
		delta, err := decimal.NewFromString(deltaStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt delta %q: %w", deltaStr, err)
		}
		tx.ID = engine.TransactionID(id)
		tx.PropertyID = engine.PropertyID(propertyID)
		tx.UserID = engine.UserID(userID)
		tx.Delta = engine.Nights{Value: delta}
		tx.Type = engine.TransactionType(txType)
		tx.ReferenceID = reference.String
		tx.Reason = reason.String
		tx.IdempotencyKey = idemKey.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

func (s *Store) CommitReservation(ctx context.Context, res *engine.Reservation, debit engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	// Overlap backstop inside the transaction. Half-open semantics:
	// existing.start < new.end AND new.start < existing.end.
	var conflictID, conflictStart, conflictEnd string
	err = dbTx.QueryRowContext(ctx, `
		SELECT id, start_date, end_date FROM reservations
		WHERE property_id = ? AND status IN ('confirmed', 'completed')
		  AND start_date < ? AND ? < end_date
		LIMIT 1`,
		string(res.PropertyID), res.Range.End.String(), res.Range.Start.String(),
	).Scan(&conflictID, &conflictStart, &conflictEnd)
	switch {
	case err == nil:
		return &engine.DateConflictError{
			PropertyID:    res.PropertyID,
			Requested:     res.Range,
			ConflictsWith: parseRange(conflictStart, conflictEnd),
			ReservationID: engine.ReservationID(conflictID),
		}
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if err := insertTransaction(ctx, dbTx, debit); err != nil {
		return err
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO reservations (id, property_id, requester_id, start_date, end_date, status, debit_year, nights_charged, guest_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(res.ID), string(res.PropertyID), string(res.RequesterID),
		res.Range.Start.String(), res.Range.End.String(), string(res.Status),
		res.DebitYear, res.NightsCharged, res.GuestCount,
		res.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) CancelReservation(ctx context.Context, id engine.ReservationID, credit engine.Transaction, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	var status string
	err = dbTx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = ?`, string(id)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ErrReservationNotFound
	}
	if err != nil {
		return err
	}
	switch engine.ReservationStatus(status) {
	case engine.StatusPending, engine.StatusConfirmed:
	default:
		return engine.ErrNotCancellable
	}

	if err := insertTransaction(ctx, dbTx, credit); err != nil {
		return err
	}
	_, err = dbTx.ExecContext(ctx, `
		UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ?`,
		string(engine.StatusCancelled), at.UTC().Format(time.RFC3339), string(id))
	if err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) CompleteReservation(ctx context.Context, id engine.ReservationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reservations SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(engine.StatusCompleted), at.UTC().Format(time.RFC3339),
		string(id), string(engine.StatusConfirmed))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, string(id)).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return engine.ErrReservationNotFound
		}
		return engine.ErrPossessionState
	}
	return nil
}

const reservationColumns = `id, property_id, requester_id, start_date, end_date, status, debit_year, nights_charged, guest_count, created_at, cancelled_at, completed_at`

func (s *Store) GetReservation(ctx context.Context, id engine.ReservationID) (*engine.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, string(id))
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrReservationNotFound
	}
	return res, err
}

func (s *Store) ListReservations(ctx context.Context, propertyID engine.PropertyID, from, to engine.TimePoint) ([]*engine.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE property_id = ?`
	args := []any{string(propertyID)}
	if !from.IsZero() && !to.IsZero() {
		query += ` AND start_date < ? AND ? < end_date`
		args = append(args, to.String(), from.String())
	}
	query += ` ORDER BY start_date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (s *Store) ListOccupying(ctx context.Context) ([]*engine.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status IN ('confirmed', 'completed')
		ORDER BY property_id, start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*engine.Reservation, error) {
	var res engine.Reservation
	var id, propertyID, requesterID, startDate, endDate, status, createdAt string
	var cancelledAt, completedAt sql.NullString
	err := row.Scan(&id, &propertyID, &requesterID, &startDate, &endDate, &status,
		&res.DebitYear, &res.NightsCharged, &res.GuestCount, &createdAt, &cancelledAt, &completedAt)
	if err != nil {
		return nil, err
	}
	res.ID = engine.ReservationID(id)
	res.PropertyID = engine.PropertyID(propertyID)
	res.RequesterID = engine.UserID(requesterID)
	res.Range = parseRange(startDate, endDate)
	res.Status = engine.ReservationStatus(status)
	res.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if cancelledAt.Valid {
		t, _ := time.Parse(time.RFC3339, cancelledAt.String)
		res.CancelledAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		res.CompletedAt = &t
	}
	return &res, nil
}

func scanReservations(rows *sql.Rows) ([]*engine.Reservation, error) {
	var out []*engine.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// =============================================================================
// CHECKLIST STORE
// =============================================================================

func (s *Store) SaveChecklist(ctx context.Context, record *engine.ChecklistRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemsJSON, err := json.Marshal(record.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checklists (id, reservation_id, phase, items_json, note, submitted_by, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(record.ID), string(record.ReservationID), string(record.Phase),
		string(itemsJSON), record.Note, string(record.SubmittedBy),
		record.SubmittedAt.UTC().Format(time.RFC3339))
	if err != nil && isUniqueViolation(err) {
		return engine.ErrAlreadySubmitted
	}
	return err
}

func (s *Store) GetChecklist(ctx context.Context, reservationID engine.ReservationID, phase engine.ChecklistPhase) (*engine.ChecklistRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, reservation_id, phase, items_json, note, submitted_by, submitted_at
		FROM checklists WHERE reservation_id = ? AND phase = ?`,
		string(reservationID), string(phase))
	record, err := scanChecklist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

func (s *Store) ListChecklists(ctx context.Context, reservationID engine.ReservationID) ([]*engine.ChecklistRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reservation_id, phase, items_json, note, submitted_by, submitted_at
		FROM checklists WHERE reservation_id = ? ORDER BY submitted_at`,
		string(reservationID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.ChecklistRecord
	for rows.Next() {
		record, err := scanChecklist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func scanChecklist(row rowScanner) (*engine.ChecklistRecord, error) {
	var record engine.ChecklistRecord
	var id, reservationID, phase, itemsJSON, submittedBy, submittedAt string
	var note sql.NullString
	if err := row.Scan(&id, &reservationID, &phase, &itemsJSON, &note, &submittedBy, &submittedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &record.Items); err != nil {
		return nil, fmt.Errorf("corrupt checklist items: %w", err)
	}
	record.ID = engine.ChecklistID(id)
	record.ReservationID = engine.ReservationID(reservationID)
	record.Phase = engine.ChecklistPhase(phase)
	record.Note = note.String
	record.SubmittedBy = engine.UserID(submittedBy)
	record.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
	return &record, nil
}

// =============================================================================
// PENALTY STORE
// =============================================================================

func (s *Store) SavePenalty(ctx context.Context, p *engine.Penalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailsJSON, err := json.Marshal(p.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO penalties (id, property_id, user_id, reason, details_json, active, created_at, issued_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.PropertyID), string(p.UserID), string(p.Reason),
		string(detailsJSON), boolToInt(p.Active),
		p.CreatedAt.UTC().Format(time.RFC3339), string(p.IssuedBy))
	return err
}

func (s *Store) ActivePenalties(ctx context.Context, propertyID engine.PropertyID, userID engine.UserID) ([]*engine.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPenalties(ctx, `
		SELECT id, property_id, user_id, reason, details_json, active, created_at, issued_by
		FROM penalties WHERE property_id = ? AND user_id = ? AND active = 1
		ORDER BY created_at`,
		string(propertyID), string(userID))
}

func (s *Store) ListPenalties(ctx context.Context, propertyID engine.PropertyID) ([]*engine.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryPenalties(ctx, `
		SELECT id, property_id, user_id, reason, details_json, active, created_at, issued_by
		FROM penalties WHERE property_id = ? ORDER BY created_at`,
		string(propertyID))
}

func (s *Store) queryPenalties(ctx context.Context, query string, args ...any) ([]*engine.Penalty, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Penalty
	for rows.Next() {
		var p engine.Penalty
		var id, propertyID, userID, reason, createdAt string
		var detailsJSON, issuedBy sql.NullString
		var active int
		if err := rows.Scan(&id, &propertyID, &userID, &reason, &detailsJSON, &active, &createdAt, &issuedBy); err != nil {
			return nil, err
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &p.Details); err != nil {
				return nil, fmt.Errorf("corrupt penalty details: %w", err)
			}
		}
		p.ID = engine.PenaltyID(id)
		p.PropertyID = engine.PropertyID(propertyID)
		p.UserID = engine.UserID(userID)
		p.Reason = engine.PenaltyReason(reason)
		p.Active = active == 1
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.IssuedBy = engine.UserID(issuedBy.String)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Store) DeactivatePenalty(ctx context.Context, id engine.PenaltyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `UPDATE penalties SET active = 0 WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return engine.ErrPenaltyNotFound
	}
	return nil
}

// =============================================================================
// COLLABORATOR STORES
// =============================================================================

func (s *Store) GetRules(ctx context.Context, propertyID engine.PropertyID) (engine.PropertyRules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := engine.PropertyRules{PropertyID: propertyID}
	err := s.db.QueryRowContext(ctx, `
		SELECT min_stay_nights, max_stay_nights, nights_per_fraction FROM properties WHERE id = ?`,
		string(propertyID)).Scan(&rules.MinStayNights, &rules.MaxStayNights, &rules.NightsPerFraction)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.PropertyRules{}, engine.ErrPropertyNotFound
	}
	return rules, err
}

func (s *Store) SaveRules(ctx context.Context, rules engine.PropertyRules) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (id, min_stay_nights, max_stay_nights, nights_per_fraction) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			min_stay_nights = excluded.min_stay_nights,
			max_stay_nights = excluded.max_stay_nights,
			nights_per_fraction = excluded.nights_per_fraction`,
		string(rules.PropertyID), rules.MinStayNights, rules.MaxStayNights, rules.NightsPerFraction)
	return err
}

func (s *Store) ListProperties(ctx context.Context) ([]engine.PropertyRules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, min_stay_nights, max_stay_nights, nights_per_fraction FROM properties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.PropertyRules
	for rows.Next() {
		var rules engine.PropertyRules
		var id string
		if err := rows.Scan(&id, &rules.MinStayNights, &rules.MaxStayNights, &rules.NightsPerFraction); err != nil {
			return nil, err
		}
		rules.PropertyID = engine.PropertyID(id)
		out = append(out, rules)
	}
	return out, rows.Err()
}

func (s *Store) GetMembership(ctx context.Context, key engine.MembershipKey) (*engine.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := engine.Membership{PropertyID: key.PropertyID, UserID: key.UserID}
	var permission string
	err := s.db.QueryRowContext(ctx, `
		SELECT permission, fraction_count FROM memberships WHERE property_id = ? AND user_id = ?`,
		string(key.PropertyID), string(key.UserID)).Scan(&permission, &m.FractionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Permission = engine.PermissionLevel(permission)
	return &m, nil
}

func (s *Store) ListMemberships(ctx context.Context, propertyID engine.PropertyID) ([]*engine.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, permission, fraction_count FROM memberships WHERE property_id = ? ORDER BY user_id`,
		string(propertyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Membership
	for rows.Next() {
		m := engine.Membership{PropertyID: propertyID}
		var userID, permission string
		if err := rows.Scan(&userID, &permission, &m.FractionCount); err != nil {
			return nil, err
		}
		m.UserID = engine.UserID(userID)
		m.Permission = engine.PermissionLevel(permission)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) SaveMembership(ctx context.Context, m *engine.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (property_id, user_id, permission, fraction_count) VALUES (?, ?, ?, ?)
		ON CONFLICT(property_id, user_id) DO UPDATE SET permission = excluded.permission, fraction_count = excluded.fraction_count`,
		string(m.PropertyID), string(m.UserID), string(m.Permission), m.FractionCount)
	return err
}

func (s *Store) ListInventory(ctx context.Context, propertyID engine.PropertyID) ([]engine.ItemID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id FROM inventory_items WHERE property_id = ? ORDER BY item_id`,
		string(propertyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.ItemID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, engine.ItemID(id))
	}
	return out, rows.Err()
}

func (s *Store) SaveInventory(ctx context.Context, propertyID engine.PropertyID, items []engine.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM inventory_items WHERE property_id = ?`, string(propertyID)); err != nil {
		return err
	}
	for _, item := range items {
		if _, err := dbTx.ExecContext(ctx, `
			INSERT INTO inventory_items (property_id, item_id) VALUES (?, ?)`,
			string(propertyID), string(item)); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRange(start, end string) engine.DateRange {
	s, _ := time.Parse(dateLayout, start)
	e, _ := time.Parse(dateLayout, end)
	return engine.DateRange{Start: engine.TimePoint{Time: s}, End: engine.TimePoint{Time: e}}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
