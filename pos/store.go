/*
store.go - Persistence interfaces for the day-close ledger

PURPOSE:
  Defines the interface between the ledger and the database. The ledger only
  depends on these interfaces; a concrete handle is constructed once at
  startup and passed down explicitly.

KEY INTERFACES:
  StoreDirectory: Store (shop) lookups
  OrderReader:    Orders by calendar date
  DayCloseStore:  Append-only day-close records
  LedgerStore:    Everything the ledger reads and writes
  TxStore:        LedgerStore plus atomic multi-statement work

APPEND-ONLY CONTRACT:
  DayCloseStore has AppendDayClose and no Update/Delete. It also does NOT
  reject a second record for the same store and date: uniqueness is the
  caller's job (see dayclose.Ledger.CloseOnce for the guarded path).

IMPLEMENTATIONS:
  - store/sqlite: SQLite database file
  - store/memory: In-memory for tests

SEE ALSO:
  - dayclose/ledger.go: The only consumer
*/
package pos

import "context"

// StoreDirectory reads shop locations.
type StoreDirectory interface {
	// ListStores returns all stores ordered by name. Empty slice, not an error,
	// when none exist; the ledger decides whether that is fatal.
	ListStores(ctx context.Context) ([]Store, error)

	// GetStore returns ErrStoreNotFound when id is unknown.
	GetStore(ctx context.Context, id string) (Store, error)
}

// OrderReader reads orders.
type OrderReader interface {
	// OrdersByDate returns orders dated date in any of statuses (all statuses
	// when none are given), across all stores.
	OrdersByDate(ctx context.Context, date Date, statuses ...OrderStatus) ([]Order, error)
}

// DayCloseStore persists day-close records. Append-only.
type DayCloseStore interface {
	// AppendDayClose inserts rec. It does not check for an existing record.
	AppendDayClose(ctx context.Context, rec DayCloseRecord) error

	// DayCloseExists reports whether any record exists for storeID on date.
	DayCloseExists(ctx context.Context, storeID string, date Date) (bool, error)

	// GetDayClose returns the earliest-written record for storeID on date, or nil.
	GetDayClose(ctx context.Context, storeID string, date Date) (*DayCloseRecord, error)

	// LatestDayClose returns the record with the greatest working date across
	// all stores, or nil when the table is empty.
	LatestDayClose(ctx context.Context) (*DayCloseRecord, error)

	// ListDayCloses returns matching records, newest working date first.
	ListDayCloses(ctx context.Context, filter DayCloseFilter) ([]DayCloseRecord, error)
}

// LedgerStore is everything the day-close ledger needs.
type LedgerStore interface {
	StoreDirectory
	OrderReader
	DayCloseStore
}

// TxStore wraps LedgerStore with transaction support.
type TxStore interface {
	LedgerStore

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back; otherwise committed.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}
