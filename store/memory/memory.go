// Package memory provides an in-memory pos.TxStore for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/pos-engine/pos"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory mirrors the SQLite store, including the missing uniqueness
// constraint on day closes and the foreign key from day closes to stores.
type Memory struct {
	mu     sync.RWMutex
	stores map[string]pos.Store
	orders []pos.Order
	closes []pos.DayCloseRecord // insertion order

	// AppendErr, when set, is returned by every AppendDayClose.
	AppendErr error
}

var _ pos.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		stores: make(map[string]pos.Store),
	}
}

// SaveStore adds or replaces a store. An empty ID is assigned a new uuid.
func (m *Memory) SaveStore(_ context.Context, st pos.Store) (pos.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if existing, ok := m.stores[st.ID]; ok {
		st.CreatedAt = existing.CreatedAt
	} else if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	m.stores[st.ID] = st
	return st, nil
}

func (m *Memory) GetStore(_ context.Context, id string) (pos.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getStoreLocked(id)
}

func (m *Memory) getStoreLocked(id string) (pos.Store, error) {
	st, ok := m.stores[id]
	if !ok {
		return pos.Store{}, fmt.Errorf("%w: %s", pos.ErrStoreNotFound, id)
	}
	return st, nil
}

func (m *Memory) ListStores(_ context.Context) ([]pos.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listStoresLocked(), nil
}

func (m *Memory) listStoresLocked() []pos.Store {
	result := make([]pos.Store, 0, len(m.stores))
	for _, st := range m.stores {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// SaveOrder appends an order, or replaces one with the same ID.
func (m *Memory) SaveOrder(_ context.Context, o pos.Order) (pos.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	for i := range m.orders {
		if m.orders[i].ID == o.ID {
			m.orders[i] = o
			return o, nil
		}
	}
	m.orders = append(m.orders, o)
	return o, nil
}

func (m *Memory) OrdersByDate(_ context.Context, date pos.Date, statuses ...pos.OrderStatus) ([]pos.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ordersByDateLocked(date, statuses), nil
}

func (m *Memory) ordersByDateLocked(date pos.Date, statuses []pos.OrderStatus) []pos.Order {
	var result []pos.Order
	for _, o := range m.orders {
		if !o.Date.Equal(date) {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, o.Status) {
			continue
		}
		result = append(result, o)
	}
	return result
}

// AppendDayClose adds a record. Append-only, no uniqueness check.
func (m *Memory) AppendDayClose(_ context.Context, rec pos.DayCloseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(rec)
}

func (m *Memory) appendLocked(rec pos.DayCloseRecord) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	if _, ok := m.stores[rec.StoreID]; !ok {
		return fmt.Errorf("failed to append day close: %w: %s", pos.ErrStoreNotFound, rec.StoreID)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ClosedAt.IsZero() {
		rec.ClosedAt = time.Now().UTC()
	}
	m.closes = append(m.closes, rec)
	return nil
}

func (m *Memory) DayCloseExists(_ context.Context, storeID string, date pos.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(storeID, date) != nil, nil
}

func (m *Memory) GetDayClose(_ context.Context, storeID string, date pos.Date) (*pos.DayCloseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(storeID, date), nil
}

func (m *Memory) findLocked(storeID string, date pos.Date) *pos.DayCloseRecord {
	for _, rec := range m.closes {
		if rec.StoreID == storeID && rec.WorkingDate.Equal(date) {
			found := rec
			return &found
		}
	}
	return nil
}

func (m *Memory) LatestDayClose(_ context.Context) (*pos.DayCloseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(), nil
}

func (m *Memory) latestLocked() *pos.DayCloseRecord {
	var latest *pos.DayCloseRecord
	for i := range m.closes {
		rec := m.closes[i]
		// >= so the last written row wins ties, like the SQL ordering.
		if latest == nil || !rec.WorkingDate.Before(latest.WorkingDate) {
			found := rec
			latest = &found
		}
	}
	return latest
}

func (m *Memory) ListDayCloses(_ context.Context, filter pos.DayCloseFilter) ([]pos.DayCloseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(filter), nil
}

func (m *Memory) listLocked(filter pos.DayCloseFilter) []pos.DayCloseRecord {
	result := []pos.DayCloseRecord{}
	// Newest rows first so the stable sort keeps later writes ahead on ties.
	for i := len(m.closes) - 1; i >= 0; i-- {
		if filter.Matches(m.closes[i]) {
			result = append(result, m.closes[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].WorkingDate.After(result[j].WorkingDate)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// CountDayCloses returns how many rows exist for store+date.
func (m *Memory) CountDayCloses(_ context.Context, storeID string, date pos.Date) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, rec := range m.closes {
		if rec.StoreID == storeID && rec.WorkingDate.Equal(date) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(pos.LedgerStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := append([]pos.DayCloseRecord{}, m.closes...)

	if err := fn(&txView{parent: m}); err != nil {
		m.closes = snapshot
		return err
	}
	return nil
}

// txView runs against the parent while WithTx holds its lock.
type txView struct {
	parent *Memory
}

func (tv *txView) ListStores(context.Context) ([]pos.Store, error) {
	return tv.parent.listStoresLocked(), nil
}

func (tv *txView) GetStore(_ context.Context, id string) (pos.Store, error) {
	return tv.parent.getStoreLocked(id)
}

func (tv *txView) OrdersByDate(_ context.Context, date pos.Date, statuses ...pos.OrderStatus) ([]pos.Order, error) {
	return tv.parent.ordersByDateLocked(date, statuses), nil
}

func (tv *txView) AppendDayClose(_ context.Context, rec pos.DayCloseRecord) error {
	return tv.parent.appendLocked(rec)
}

func (tv *txView) DayCloseExists(_ context.Context, storeID string, date pos.Date) (bool, error) {
	return tv.parent.findLocked(storeID, date) != nil, nil
}

func (tv *txView) GetDayClose(_ context.Context, storeID string, date pos.Date) (*pos.DayCloseRecord, error) {
	return tv.parent.findLocked(storeID, date), nil
}

func (tv *txView) LatestDayClose(context.Context) (*pos.DayCloseRecord, error) {
	return tv.parent.latestLocked(), nil
}

func (tv *txView) ListDayCloses(_ context.Context, filter pos.DayCloseFilter) ([]pos.DayCloseRecord, error) {
	return tv.parent.listLocked(filter), nil
}

func containsStatus(statuses []pos.OrderStatus, s pos.OrderStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
