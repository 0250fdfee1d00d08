/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements pos.TxStore on the single local database file the back office
  runs on. The file path comes from configuration (POS_DB_PATH / -db); the
  Store is constructed once and handed to the ledger explicitly.

INTERFACES IMPLEMENTED:
  pos.StoreDirectory: Shop locations
  pos.OrderReader:    Orders by date
  pos.DayCloseStore:  Append-only day-close records
  pos.TxStore:        WithTx for atomic check-then-insert

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on day_close (except Reset for tests)
  - NO unique index on day_close(store_id, working_date). Two inserts for the
    same pair both succeed; uniqueness is a caller-side existence check.

KEY TABLES:
  stores:    Shop locations (id, name, location, manager_id)
  orders:    Sales (date, status, ground_total)
  day_close: One frozen summary per store per working date

DATES:
  Calendar dates are YYYY-MM-DD text, so ORDER BY working_date sorts
  chronologically. Timestamps are RFC3339 UTC.

CONCURRENCY:
  Uses sync.RWMutex around each statement. The mutex does not span separate
  calls: DayCloseExists followed by AppendDayClose is NOT atomic. Use WithTx.

WAL MODE:
  Opened with WAL and a busy timeout so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/pos.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := dayclose.NewLedger(store, logger)

SEE ALSO:
  - pos/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/pos-engine/pos"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ pos.TxStore = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Stores (shop locations)
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		manager_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Orders (read by the day close)
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		store_id TEXT,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		ground_total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_date_status
		ON orders(date, status);

	-- Day close (append-only). Deliberately no UNIQUE(store_id, working_date).
	CREATE TABLE IF NOT EXISTS day_close (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL REFERENCES stores(id),
		working_date TEXT NOT NULL,
		next_working_date TEXT NOT NULL,
		running_orders INTEGER NOT NULL DEFAULT 0,
		total_amount TEXT NOT NULL DEFAULT '0',
		voided_orders INTEGER NOT NULL DEFAULT 0,
		closed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_day_close_store_date
		ON day_close(store_id, working_date);
	CREATE INDEX IF NOT EXISTS idx_day_close_working_date
		ON day_close(working_date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE DIRECTORY (pos.StoreDirectory interface)
// =============================================================================

// SaveStore inserts or updates a store. An empty ID is assigned a new uuid.
func (s *Store) SaveStore(ctx context.Context, st pos.Store) (pos.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	query := `
		INSERT INTO stores (id, name, location, manager_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			manager_id = excluded.manager_id,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		st.ID, st.Name, st.Location, nullString(st.ManagerID),
		st.CreatedAt.Format(time.RFC3339), st.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return pos.Store{}, fmt.Errorf("failed to save store: %w", err)
	}
	return st, nil
}

// GetStore retrieves a store by ID.
func (s *Store) GetStore(ctx context.Context, id string) (pos.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getStore(ctx, s.db, id)
}

func getStore(ctx context.Context, q queryer, id string) (pos.Store, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, name, location, manager_id, created_at, updated_at FROM stores WHERE id = ?",
		id,
	)
	st, err := scanStore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Store{}, fmt.Errorf("%w: %s", pos.ErrStoreNotFound, id)
	}
	return st, err
}

// ListStores returns all stores ordered by name.
func (s *Store) ListStores(ctx context.Context) ([]pos.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listStores(ctx, s.db)
}

func listStores(ctx context.Context, q queryer) ([]pos.Store, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, location, manager_id, created_at, updated_at FROM stores ORDER BY name, id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	defer rows.Close()

	stores := []pos.Store{}
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (pos.Store, error) {
	var (
		st                   pos.Store
		managerID            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Location, &managerID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("failed to scan store: %w", err)
	}
	st.ManagerID = managerID.String
	var err error
	if st.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return st, fmt.Errorf("store %s: %w", st.ID, err)
	}
	if st.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return st, fmt.Errorf("store %s: %w", st.ID, err)
	}
	return st, nil
}

// =============================================================================
// ORDERS (pos.OrderReader interface)
// =============================================================================

// SaveOrder inserts or updates an order. An empty ID is assigned a new uuid.
func (s *Store) SaveOrder(ctx context.Context, o pos.Order) (pos.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO orders (id, store_id, date, status, ground_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			ground_total = excluded.ground_total
	`

	_, err := s.db.ExecContext(ctx, query,
		o.ID, nullString(o.StoreID), o.Date.String(), string(o.Status),
		o.GrandTotal.String(), o.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return pos.Order{}, fmt.Errorf("failed to save order: %w", err)
	}
	return o, nil
}

// OrdersByDate returns orders dated date, optionally filtered by status.
func (s *Store) OrdersByDate(ctx context.Context, date pos.Date, statuses ...pos.OrderStatus) ([]pos.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ordersByDate(ctx, s.db, date, statuses)
}

func ordersByDate(ctx context.Context, q queryer, date pos.Date, statuses []pos.OrderStatus) ([]pos.Order, error) {
	query := `
		SELECT id, store_id, date, status, ground_total, created_at
		FROM orders
		WHERE date = ?`
	args := []any{date.String()}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []pos.Order
	for rows.Next() {
		var (
			o                         pos.Order
			storeID                   sql.NullString
			day, status, total, added string
		)
		if err := rows.Scan(&o.ID, &storeID, &day, &status, &total, &added); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.StoreID = storeID.String
		if o.Date, err = pos.ParseDate(day); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		o.Status = pos.OrderStatus(status)
		if o.GrandTotal, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("order %s: ground_total: %w", o.ID, err)
		}
		if o.CreatedAt, err = parseTimestamp(added); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// =============================================================================
// DAY CLOSE (pos.DayCloseStore interface)
// =============================================================================

const dayCloseColumns = `id, store_id, working_date, next_working_date,
		running_orders, total_amount, voided_orders, closed_at`

// AppendDayClose inserts a day-close record. It does not look for an
// existing record first.
func (s *Store) AppendDayClose(ctx context.Context, rec pos.DayCloseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendDayClose(ctx, s.db, rec)
}

func appendDayClose(ctx context.Context, q queryer, rec pos.DayCloseRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ClosedAt.IsZero() {
		rec.ClosedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO day_close (` + dayCloseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		rec.ID,
		rec.StoreID,
		rec.WorkingDate.String(),
		rec.NextWorkingDate.String(),
		rec.RunningOrders,
		rec.TotalAmount.String(),
		rec.VoidedOrders,
		rec.ClosedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("failed to append day close: %w: %s", pos.ErrStoreNotFound, rec.StoreID)
		}
		return fmt.Errorf("failed to append day close: %w", err)
	}
	return nil
}

// DayCloseExists checks if any record exists for store+date.
func (s *Store) DayCloseExists(ctx context.Context, storeID string, date pos.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return dayCloseExists(ctx, s.db, storeID, date)
}

func dayCloseExists(ctx context.Context, q queryer, storeID string, date pos.Date) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM day_close WHERE store_id = ? AND working_date = ?",
		storeID, date.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check day close: %w", err)
	}
	return count > 0, nil
}

// GetDayClose returns the first record written for store+date, or nil.
func (s *Store) GetDayClose(ctx context.Context, storeID string, date pos.Date) (*pos.DayCloseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDayClose(ctx, s.db, storeID, date)
}

func getDayClose(ctx context.Context, q queryer, storeID string, date pos.Date) (*pos.DayCloseRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+dayCloseColumns+`
		FROM day_close
		WHERE store_id = ? AND working_date = ?
		ORDER BY closed_at ASC, rowid ASC
		LIMIT 1`,
		storeID, date.String(),
	)
	return scanDayCloseRow(row)
}

// LatestDayClose returns the record with the greatest working_date across
// all stores. Ties go to the most recently written row.
func (s *Store) LatestDayClose(ctx context.Context) (*pos.DayCloseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return latestDayClose(ctx, s.db)
}

func latestDayClose(ctx context.Context, q queryer) (*pos.DayCloseRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+dayCloseColumns+`
		FROM day_close
		ORDER BY working_date DESC, closed_at DESC, rowid DESC
		LIMIT 1`,
	)
	return scanDayCloseRow(row)
}

// ListDayCloses returns records matching filter, newest working date first.
func (s *Store) ListDayCloses(ctx context.Context, filter pos.DayCloseFilter) ([]pos.DayCloseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listDayCloses(ctx, s.db, filter)
}

func listDayCloses(ctx context.Context, q queryer, filter pos.DayCloseFilter) ([]pos.DayCloseRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.StoreID != "" {
		where = append(where, "store_id = ?")
		args = append(args, filter.StoreID)
	}
	if !filter.From.IsZero() {
		where = append(where, "working_date >= ?")
		args = append(args, filter.From.String())
	}
	if !filter.To.IsZero() {
		where = append(where, "working_date <= ?")
		args = append(args, filter.To.String())
	}

	query := "SELECT " + dayCloseColumns + " FROM day_close"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY working_date DESC, closed_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day closes: %w", err)
	}
	defer rows.Close()

	records := []pos.DayCloseRecord{}
	for rows.Next() {
		rec, err := scanDayClose(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountDayCloses returns how many rows exist for store+date. More than one
// means two unguarded closes raced or were repeated.
func (s *Store) CountDayCloses(ctx context.Context, storeID string, date pos.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM day_close WHERE store_id = ? AND working_date = ?",
		storeID, date.String(),
	).Scan(&count)
	return count, err
}

func scanDayCloseRow(row *sql.Row) (*pos.DayCloseRecord, error) {
	rec, err := scanDayClose(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanDayClose(row rowScanner) (pos.DayCloseRecord, error) {
	var (
		rec             pos.DayCloseRecord
		working, next   string
		total, closedAt string
	)
	err := row.Scan(
		&rec.ID, &rec.StoreID, &working, &next,
		&rec.RunningOrders, &total, &rec.VoidedOrders, &closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan day close: %w", err)
	}

	if rec.WorkingDate, err = pos.ParseDate(working); err != nil {
		return rec, fmt.Errorf("day close %s: %w", rec.ID, err)
	}
	if rec.NextWorkingDate, err = pos.ParseDate(next); err != nil {
		return rec, fmt.Errorf("day close %s: %w", rec.ID, err)
	}
	if rec.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return rec, fmt.Errorf("day close %s: total_amount: %w", rec.ID, err)
	}
	if rec.ClosedAt, err = parseTimestamp(closedAt); err != nil {
		return rec, fmt.Errorf("day close %s: %w", rec.ID, err)
	}
	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (pos.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store lock
// is held for the whole transaction, so fn must only use the store it is given.
func (s *Store) WithTx(ctx context.Context, fn func(store pos.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ListStores(ctx context.Context) ([]pos.Store, error) {
	return listStores(ctx, ts.tx)
}

func (ts *txStore) GetStore(ctx context.Context, id string) (pos.Store, error) {
	return getStore(ctx, ts.tx, id)
}

func (ts *txStore) OrdersByDate(ctx context.Context, date pos.Date, statuses ...pos.OrderStatus) ([]pos.Order, error) {
	return ordersByDate(ctx, ts.tx, date, statuses)
}

func (ts *txStore) AppendDayClose(ctx context.Context, rec pos.DayCloseRecord) error {
	return appendDayClose(ctx, ts.tx, rec)
}

func (ts *txStore) DayCloseExists(ctx context.Context, storeID string, date pos.Date) (bool, error) {
	return dayCloseExists(ctx, ts.tx, storeID, date)
}

func (ts *txStore) GetDayClose(ctx context.Context, storeID string, date pos.Date) (*pos.DayCloseRecord, error) {
	return getDayClose(ctx, ts.tx, storeID, date)
}

func (ts *txStore) LatestDayClose(ctx context.Context) (*pos.DayCloseRecord, error) {
	return latestDayClose(ctx, ts.tx)
}

func (ts *txStore) ListDayCloses(ctx context.Context, filter pos.DayCloseFilter) ([]pos.DayCloseRecord, error) {
	return listDayCloses(ctx, ts.tx, filter)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"day_close", "orders", "stores"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
