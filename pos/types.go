/*
Package pos provides the core types of the point-of-sale back office.

PURPOSE:
  Holds the typed records that cross the storage boundary (stores, orders,
  day-close records) together with the persistence interfaces the day-close
  ledger depends on. Rows are always materialized into these structs by the
  store implementations; nothing above the store sees raw rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - Store: a physical shop location
  - Order: a sale, identified by date and status, with a grand total
  - DayCloseRecord: the frozen summary of one store's working date
  - OrderSummary: the settled/voided aggregate for one calendar date

DESIGN PRINCIPLES:
  1. Immutability: DayCloseRecords are written once and never updated
  2. Precision: money uses decimal.Decimal, never float64
  3. Dates are calendar days (see date.go), stored as YYYY-MM-DD

SEE ALSO:
  - date.go: Date type and arithmetic
  - store.go: Persistence interfaces
  - errors.go: Sentinel and structured errors
*/
package pos

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Shop location
// =============================================================================

// Store is a shop location. Day closes are recorded per store.
type Store struct {
	ID        string
	Name      string
	Location  string
	ManagerID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ORDER - Sale read by the day-close ledger
// =============================================================================

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen    OrderStatus = "open"
	OrderHeld    OrderStatus = "held"
	OrderSettled OrderStatus = "settled"
	OrderVoided  OrderStatus = "voided"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderOpen, OrderHeld, OrderSettled, OrderVoided:
		return true
	}
	return false
}

// Order is a sale. Only Date, Status and GrandTotal matter to the ledger.
type Order struct {
	ID         string
	StoreID    string
	Date       Date
	Status     OrderStatus
	GrandTotal decimal.Decimal
	CreatedAt  time.Time
}

// OrderSummary aggregates the orders of one calendar date.
type OrderSummary struct {
	Date          Date
	SettledOrders int
	TotalAmount   decimal.Decimal // sum of settled grand totals, zero if none
	VoidedOrders  int
}

// SummarizeOrders folds orders into an OrderSummary for date.
// Orders dated differently or in other statuses are ignored.
func SummarizeOrders(date Date, orders []Order) OrderSummary {
	summary := OrderSummary{Date: date, TotalAmount: decimal.Zero}
	for _, o := range orders {
		if !o.Date.Equal(date) {
			continue
		}
		switch o.Status {
		case OrderSettled:
			summary.SettledOrders++
			summary.TotalAmount = summary.TotalAmount.Add(o.GrandTotal)
		case OrderVoided:
			summary.VoidedOrders++
		}
	}
	return summary
}

// =============================================================================
// DAY CLOSE RECORD - Immutable daily summary
// =============================================================================

// DayCloseRecord freezes one working date of one store.
//
// INVARIANTS:
//   - NextWorkingDate == WorkingDate + 1 day, no weekend or holiday skipping.
//   - At most one record per (StoreID, WorkingDate), but only as far as callers
//     check existence first. The table carries no unique constraint.
type DayCloseRecord struct {
	ID              string
	StoreID         string
	WorkingDate     Date
	NextWorkingDate Date
	RunningOrders   int // settled orders
	TotalAmount     decimal.Decimal
	VoidedOrders    int
	ClosedAt        time.Time
}

// NewDayCloseRecord builds the record for closing date with the given summary.
func NewDayCloseRecord(id, storeID string, date Date, summary OrderSummary, closedAt time.Time) DayCloseRecord {
	return DayCloseRecord{
		ID:              id,
		StoreID:         storeID,
		WorkingDate:     date,
		NextWorkingDate: date.AddDays(1),
		RunningOrders:   summary.SettledOrders,
		TotalAmount:     summary.TotalAmount,
		VoidedOrders:    summary.VoidedOrders,
		ClosedAt:        closedAt.UTC(),
	}
}

// DayCloseFilter narrows history queries. Zero values mean "any".
type DayCloseFilter struct {
	StoreID string
	From    Date
	To      Date
	Limit   int
}

// Matches reports whether rec falls inside the filter.
func (f DayCloseFilter) Matches(rec DayCloseRecord) bool {
	if f.StoreID != "" && rec.StoreID != f.StoreID {
		return false
	}
	if !f.From.IsZero() && rec.WorkingDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.WorkingDate.After(f.To) {
		return false
	}
	return true
}

// CloseSummary totals a set of day-close records.
type CloseSummary struct {
	DaysClosed    int
	RunningOrders int
	TotalAmount   decimal.Decimal
	VoidedOrders  int
	FirstDate     Date
	LastDate      Date
}

// SummarizeCloses totals records. FirstDate/LastDate span the working dates seen.
func SummarizeCloses(records []DayCloseRecord) CloseSummary {
	sum := CloseSummary{TotalAmount: decimal.Zero}
	for _, r := range records {
		sum.DaysClosed++
		sum.RunningOrders += r.RunningOrders
		sum.TotalAmount = sum.TotalAmount.Add(r.TotalAmount)
		sum.VoidedOrders += r.VoidedOrders
		if sum.FirstDate.IsZero() || r.WorkingDate.Before(sum.FirstDate) {
			sum.FirstDate = r.WorkingDate
		}
		if sum.LastDate.IsZero() || r.WorkingDate.After(sum.LastDate) {
			sum.LastDate = r.WorkingDate
		}
	}
	return sum
}
