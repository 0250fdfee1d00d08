package dayclose

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/pos-engine/pos"
)

// BootReport is the outcome of one boot-time check.
type BootReport struct {
	Date          pos.Date // the date examined (yesterday)
	Closed        []string // store IDs closed by this check
	AlreadyClosed []string
	Pending       []string // not closed, auto-close disabled
	Failed        []string
}

// Complete reports whether every store has a record for Date.
func (r BootReport) Complete() bool {
	return len(r.Pending) == 0 && len(r.Failed) == 0
}

// PendingStores returns the stores without a record for date.
// Returns pos.ErrNoStores when no store exists at all.
func (l *Ledger) PendingStores(ctx context.Context, date pos.Date) ([]pos.Store, error) {
	stores, err := l.listStores(ctx)
	if err != nil {
		return nil, err
	}

	var pending []pos.Store
	for _, st := range stores {
		exists, err := l.store.DayCloseExists(ctx, st.ID, date)
		if err != nil {
			return nil, fmt.Errorf("check day close for store %s: %w", st.ID, err)
		}
		if !exists {
			pending = append(pending, st)
		}
	}
	return pending, nil
}

// BootCheck examines yesterday only. Stores without a record for yesterday
// are closed once when autoClose is set, otherwise reported as pending.
// Several missed days need several invocations: there is no catch-up loop.
func (l *Ledger) BootCheck(ctx context.Context, autoClose bool) (BootReport, error) {
	report := BootReport{Date: l.Today().AddDays(-1)}

	stores, err := l.listStores(ctx)
	if err != nil {
		return report, err
	}

	for _, st := range stores {
		entry := l.log.WithFields(logrus.Fields{
			"store_id":     st.ID,
			"working_date": report.Date.String(),
		})

		exists, err := l.store.DayCloseExists(ctx, st.ID, report.Date)
		if err != nil {
			entry.WithError(err).Error("boot check: existence check failed")
			report.Failed = append(report.Failed, st.ID)
			continue
		}
		switch {
		case exists:
			report.AlreadyClosed = append(report.AlreadyClosed, st.ID)
		case !autoClose:
			entry.Warn("boot check: previous day not closed")
			report.Pending = append(report.Pending, st.ID)
		case l.PerformClose(ctx, st.ID, report.Date):
			report.Closed = append(report.Closed, st.ID)
		default:
			report.Failed = append(report.Failed, st.ID)
		}
	}

	l.log.WithFields(logrus.Fields{
		"working_date":   report.Date.String(),
		"closed":         len(report.Closed),
		"already_closed": len(report.AlreadyClosed),
		"pending":        len(report.Pending),
		"failed":         len(report.Failed),
	}).Info("boot check finished")
	return report, nil
}

func (l *Ledger) listStores(ctx context.Context) ([]pos.Store, error) {
	stores, err := l.store.ListStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	if len(stores) == 0 {
		l.log.Warn("no stores found")
		return nil, pos.ErrNoStores
	}
	return stores, nil
}
