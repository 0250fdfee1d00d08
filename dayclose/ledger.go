/*
ledger.go - Day-close ledger: freeze a store's working date and gate the app

PURPOSE:
  A day close computes the settled/voided aggregate of a working date and
  writes one immutable DayCloseRecord for a store. The most recent record
  also decides whether the application may be used today (the operational
  gate): nothing proceeds until the day after the last closed date arrives.

STATE MACHINE (per store):
  OPEN(d) --close--> CLOSED(d) == OPEN(d+1)
  There is no in-progress or failed state. A failed close leaves OPEN(d)
  and the caller retries.

OPERATIONS:
  OrdersStatus(date)          settled count, settled total, voided count
  DayCloseExists(store, date) existence check
  PerformClose(store, date)   insert a record; false + log on failure
  Close(store, date)          same, returning the record or the error
  CloseOnce(store, date)      existence check + insert in one transaction
  IsOperational()             gate check against the latest record

NON-IDEMPOTENT CLOSE:
  PerformClose does NOT check for an existing record. Calling it twice
  for the same store and date writes two rows. Callers check
  DayCloseExists first, or use CloseOnce.

GLOBAL GATE:
  IsOperational looks at the latest record across ALL stores, not per store.
  With several stores, closing any one of them today locks the app for all.

DEPENDENCIES:
  Storage and logging are passed in. The clock defaults to time.Now and can
  be replaced with WithNow for deterministic tests.

SEE ALSO:
  - boot.go: Boot-time check of yesterday's close
  - pos/store.go: LedgerStore / TxStore interfaces
*/
package dayclose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/pos-engine/pos"
)

// ErrTxRequired is returned by CloseOnce when the store cannot run transactions.
var ErrTxRequired = errors.New("dayclose: store does not support transactions")

// =============================================================================
// LEDGER
// =============================================================================

// Ledger computes, persists and reads day-close records.
type Ledger struct {
	store   pos.LedgerStore
	txStore pos.TxStore // nil if store has no transaction support
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewLedger creates a ledger over store. A nil logger discards output.
func NewLedger(store pos.LedgerStore, logger logrus.FieldLogger) *Ledger {
	if logger == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		logger = quiet
	}
	l := &Ledger{
		store: store,
		log:   logger.WithField("component", "dayclose"),
		now:   time.Now,
	}
	if ts, ok := store.(pos.TxStore); ok {
		l.txStore = ts
	}
	return l
}

// WithNow overrides the clock for deterministic tests.
func (l *Ledger) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Today returns the ledger's current calendar date.
func (l *Ledger) Today() pos.Date {
	return pos.DateOf(l.now())
}

// =============================================================================
// AGGREGATION
// =============================================================================

// OrdersStatus aggregates the orders dated date across all stores.
// TotalAmount is zero when there are no settled orders. Read-only.
func (l *Ledger) OrdersStatus(ctx context.Context, date pos.Date) (pos.OrderSummary, error) {
	return ordersStatus(ctx, l.store, date)
}

func ordersStatus(ctx context.Context, store pos.OrderReader, date pos.Date) (pos.OrderSummary, error) {
	orders, err := store.OrdersByDate(ctx, date, pos.OrderSettled, pos.OrderVoided)
	if err != nil {
		return pos.OrderSummary{}, fmt.Errorf("orders status for %s: %w", date, err)
	}
	return pos.SummarizeOrders(date, orders), nil
}

// =============================================================================
// CLOSING
// =============================================================================

// DayCloseExists reports whether storeID already has a record for date.
func (l *Ledger) DayCloseExists(ctx context.Context, storeID string, date pos.Date) (bool, error) {
	return l.store.DayCloseExists(ctx, storeID, date)
}

// PerformClose writes the day-close record for storeID and date.
// It returns false on any failure and logs it; it never returns an error.
// It does not check for an existing record: see CloseOnce.
func (l *Ledger) PerformClose(ctx context.Context, storeID string, date pos.Date) bool {
	if _, err := l.Close(ctx, storeID, date); err != nil {
		l.log.WithFields(logrus.Fields{
			"store_id":     storeID,
			"working_date": date.String(),
		}).WithError(err).Error("day close failed")
		return false
	}
	return true
}

// Close is PerformClose returning the written record or the failure.
func (l *Ledger) Close(ctx context.Context, storeID string, date pos.Date) (pos.DayCloseRecord, error) {
	rec, err := l.closeWith(ctx, l.store, storeID, date)
	if err != nil {
		return pos.DayCloseRecord{}, err
	}
	l.logClosed(rec)
	return rec, nil
}

// CloseOnce checks for an existing record and inserts in one transaction.
// Returns *pos.DayAlreadyClosedError (errors.Is pos.ErrDayAlreadyClosed)
// when the day is already closed.
func (l *Ledger) CloseOnce(ctx context.Context, storeID string, date pos.Date) (pos.DayCloseRecord, error) {
	if l.txStore == nil {
		return pos.DayCloseRecord{}, ErrTxRequired
	}

	var rec pos.DayCloseRecord
	err := l.txStore.WithTx(ctx, func(tx pos.LedgerStore) error {
		existing, err := tx.GetDayClose(ctx, storeID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return &pos.DayAlreadyClosedError{
				StoreID:     storeID,
				WorkingDate: date,
				ExistingID:  existing.ID,
			}
		}
		rec, err = l.closeWith(ctx, tx, storeID, date)
		return err
	})
	if err != nil {
		return pos.DayCloseRecord{}, err
	}
	l.logClosed(rec)
	return rec, nil
}

func (l *Ledger) closeWith(ctx context.Context, store pos.LedgerStore, storeID string, date pos.Date) (pos.DayCloseRecord, error) {
	if err := validateClose(storeID, date); err != nil {
		return pos.DayCloseRecord{}, err
	}

	summary, err := ordersStatus(ctx, store, date)
	if err != nil {
		return pos.DayCloseRecord{}, err
	}

	rec := pos.NewDayCloseRecord(uuid.NewString(), storeID, date, summary, l.now())
	if err := store.AppendDayClose(ctx, rec); err != nil {
		return pos.DayCloseRecord{}, err
	}

	return rec, nil
}

// logClosed records a committed close.
func (l *Ledger) logClosed(rec pos.DayCloseRecord) {
	l.log.WithFields(logrus.Fields{
		"store_id":          rec.StoreID,
		"working_date":      rec.WorkingDate.String(),
		"next_working_date": rec.NextWorkingDate.String(),
		"running_orders":    rec.RunningOrders,
		"total_amount":      rec.TotalAmount.String(),
		"voided_orders":     rec.VoidedOrders,
	}).Info("day closed")
}

func validateClose(storeID string, date pos.Date) error {
	fields := map[string]string{}
	if strings.TrimSpace(storeID) == "" {
		fields["store_id"] = "required"
	}
	if date.IsZero() {
		fields["working_date"] = "required"
	}
	if len(fields) > 0 {
		return &pos.ValidationError{Fields: fields}
	}
	return nil
}

// =============================================================================
// OPERATIONAL GATE
// =============================================================================

// GateStatus is the full answer of the operational gate.
type GateStatus struct {
	Operational bool
	Message     string
	Today       pos.Date
	LastClose   *pos.DayCloseRecord // nil when nothing was ever closed
}

// UnlocksOn returns the date the gate opens, or the zero Date when open.
func (g GateStatus) UnlocksOn() pos.Date {
	if g.Operational || g.LastClose == nil {
		return pos.Date{}
	}
	return g.LastClose.NextWorkingDate
}

// Gate evaluates the operational gate against the latest record across all
// stores. Today strictly before its NextWorkingDate means locked.
func (l *Ledger) Gate(ctx context.Context) (GateStatus, error) {
	today := l.Today()
	latest, err := l.store.LatestDayClose(ctx)
	if err != nil {
		return GateStatus{Today: today}, fmt.Errorf("latest day close: %w", err)
	}
	if latest == nil {
		return GateStatus{
			Operational: true,
			Message:     "No day has been closed yet.",
			Today:       today,
		}, nil
	}

	status := GateStatus{Today: today, LastClose: latest}
	if today.Before(latest.NextWorkingDate) {
		status.Message = fmt.Sprintf("Day %s is closed. The application is available again on %s.",
			latest.WorkingDate, latest.NextWorkingDate)
		return status, nil
	}
	status.Operational = true
	status.Message = fmt.Sprintf("Last closed day is %s.", latest.WorkingDate)
	return status, nil
}

// IsOperational reports whether the application may be used today, with a
// message for the user. Storage failures are logged and reported as not
// operational.
func (l *Ledger) IsOperational(ctx context.Context) (bool, string) {
	status, err := l.Gate(ctx)
	if err != nil {
		l.log.WithError(err).Error("operational check failed")
		return false, "Unable to verify the day close status."
	}
	return status.Operational, status.Message
}

// =============================================================================
// AUDIT / SUMMARY READS
// =============================================================================

// GetDayClose returns the record for storeID on date, or nil.
func (l *Ledger) GetDayClose(ctx context.Context, storeID string, date pos.Date) (*pos.DayCloseRecord, error) {
	return l.store.GetDayClose(ctx, storeID, date)
}

// History returns records matching filter, newest first.
func (l *Ledger) History(ctx context.Context, filter pos.DayCloseFilter) ([]pos.DayCloseRecord, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, &pos.ValidationError{Fields: map[string]string{"to": "before from"}}
	}
	return l.store.ListDayCloses(ctx, filter)
}

// Summarize totals the records matching filter.
func (l *Ledger) Summarize(ctx context.Context, filter pos.DayCloseFilter) (pos.CloseSummary, error) {
	filter.Limit = 0
	records, err := l.History(ctx, filter)
	if err != nil {
		return pos.CloseSummary{}, err
	}
	return pos.SummarizeCloses(records), nil
}
