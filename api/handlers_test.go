/*
handlers_test.go - Tests for API handlers

Tests for:
- Store creation and validation
- Day close (unguarded duplicates, guarded conflicts, unknown store)
- Operational gate and the order lock it drives
- Boot check over HTTP and through the scheduler
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pos-engine/dayclose"
	"github.com/warp/pos-engine/pos"
	"github.com/warp/pos-engine/store/sqlite"
)

// 2025-03-11 09:30 UTC
var fixedNow = time.Date(2025, time.March, 11, 9, 30, 0, 0, time.UTC)

type testServer struct {
	store  *sqlite.Store
	ledger *dayclose.Ledger
	h      *Handler
	router *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := dayclose.NewLedger(store, nil)
	ledger.WithNow(func() time.Time { return fixedNow })

	h := NewHandler(store, ledger, nil)
	return &testServer{store: store, ledger: ledger, h: h, router: NewRouter(h, nil)}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) addStore(t *testing.T, id, name string) {
	t.Helper()
	_, err := ts.store.SaveStore(context.Background(), pos.Store{ID: id, Name: name})
	require.NoError(t, err)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// STORES
// =============================================================================

func TestCreateStore_AndList(t *testing.T) {
	ts := newTestServer(t)

	// WHEN: A store is created without an ID
	rec := ts.do(t, http.MethodPost, "/api/stores", `{"name":"Main Street","location":"Downtown"}`)

	// THEN: It gets an ID and shows up in the list
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[StoreDTO](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = ts.do(t, http.MethodGet, "/api/stores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]StoreDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Main Street", list[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/stores/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateStore_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/stores", `{"location":"Nowhere"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Code)
	assert.Equal(t, "required", resp.Fields["name"])
}

func TestGetStore_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/stores/ghost", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "store_not_found", decodeBody[ErrorResponse](t, rec).Code)
}

// =============================================================================
// ORDERS
// =============================================================================

func TestOrdersStatus_AggregatesSettledAndVoided(t *testing.T) {
	// GIVEN: Orders of 2025-03-10 in several statuses
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	for _, body := range []string{
		`{"store_id":"s1","date":"2025-03-10","status":"settled","grand_total":"12.50"}`,
		`{"store_id":"s1","date":"2025-03-10","status":"settled","grand_total":"7.50"}`,
		`{"store_id":"s1","date":"2025-03-10","status":"voided","grand_total":"3"}`,
		`{"store_id":"s1","date":"2025-03-10","status":"held","grand_total":"9"}`,
	} {
		rec := ts.do(t, http.MethodPost, "/api/orders", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// WHEN: The status of that date is requested
	rec := ts.do(t, http.MethodGet, "/api/orders/status?date=2025-03-10", "")

	// THEN: Only settled orders count toward the total
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[OrderSummaryDTO](t, rec)
	assert.Equal(t, 2, summary.SettledOrders)
	assert.Equal(t, 1, summary.VoidedOrders)
	assert.Equal(t, "20", summary.TotalAmount.String())
}

func TestCreateOrder_Validation(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodPost, "/api/orders",
		`{"store_id":"s1","date":"10/03/2025","status":"refunded","grand_total":"abc"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "date")
	assert.Contains(t, resp.Fields, "status")
	assert.Contains(t, resp.Fields, "grand_total")
}

func TestCreateOrder_UnknownStore(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders",
		`{"store_id":"ghost","date":"2025-03-10","status":"settled","grand_total":"1"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// DAY CLOSE
// =============================================================================

func TestCloseDay_UnguardedAllowsDuplicates(t *testing.T) {
	// GIVEN: A store
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	// WHEN: The same date is closed twice without the guard
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/stores/s1/day-close", `{"working_date":"2025-03-10"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// THEN: Two records exist
	count, err := ts.store.CountDayCloses(context.Background(), "s1", pos.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCloseDay_GuardedRejectsDuplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodPost, "/api/stores/s1/day-close", `{"working_date":"2025-03-10","guarded":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[DayCloseDTO](t, rec)
	assert.Equal(t, "2025-03-11", first.NextWorkingDate.String())

	rec = ts.do(t, http.MethodPost, "/api/stores/s1/day-close", `{"working_date":"2025-03-10","guarded":true}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "day_already_closed", resp.Code)
	assert.Contains(t, resp.Details, first.ID)
}

func TestCloseDay_UnknownStore(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/stores/ghost/day-close", `{"working_date":"2025-03-10"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseDay_InvalidDate(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodPost, "/api/stores/s1/day-close", `{"working_date":"yesterday"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Fields, "working_date")
}

func TestGetDayClose(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodGet, "/api/stores/s1/day-close/2025-03-10", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err := ts.ledger.Close(context.Background(), "s1", pos.MustParseDate("2025-03-10"))
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/api/stores/s1/day-close/2025-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", decodeBody[DayCloseDTO](t, rec).StoreID)
}

func TestDayCloseHistoryAndSummary(t *testing.T) {
	// GIVEN: Three closed days for one store and one for another
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")
	ts.addStore(t, "s2", "Beta")
	ctx := context.Background()
	for _, d := range []string{"2025-03-07", "2025-03-08", "2025-03-09"} {
		_, err := ts.ledger.Close(ctx, "s1", pos.MustParseDate(d))
		require.NoError(t, err)
	}
	_, err := ts.ledger.Close(ctx, "s2", pos.MustParseDate("2025-03-09"))
	require.NoError(t, err)

	// WHEN: History is filtered by store and range
	rec := ts.do(t, http.MethodGet, "/api/day-close?store_id=s1&from=2025-03-08&to=2025-03-09", "")

	// THEN: Newest first, other store excluded
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]DayCloseDTO](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "2025-03-09", history[0].WorkingDate.String())
	assert.Equal(t, "2025-03-08", history[1].WorkingDate.String())

	rec = ts.do(t, http.MethodGet, "/api/day-close/summary?store_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[CloseSummaryDTO](t, rec)
	assert.Equal(t, 3, sum.DaysClosed)
	require.NotNil(t, sum.FirstDate)
	assert.Equal(t, "2025-03-07", sum.FirstDate.String())
}

func TestDayCloseHistory_BadQuery(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/api/day-close?from=March",
		"/api/day-close?limit=-1",
		"/api/day-close?from=2025-03-10&to=2025-03-01",
	} {
		rec := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

// =============================================================================
// OPERATIONAL GATE
// =============================================================================

func TestOperational_NeverClosed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/operational", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[OperationalDTO](t, rec)
	assert.True(t, resp.Operational)
	assert.Nil(t, resp.UnlocksOn)
}

func TestOperational_LockedAfterClosingToday(t *testing.T) {
	// GIVEN: Today (2025-03-11) has been closed
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")
	_, err := ts.ledger.Close(context.Background(), "s1", pos.MustParseDate("2025-03-11"))
	require.NoError(t, err)

	// WHEN: The gate is queried
	rec := ts.do(t, http.MethodGet, "/api/operational", "")

	// THEN: Locked until tomorrow
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[OperationalDTO](t, rec)
	assert.False(t, resp.Operational)
	require.NotNil(t, resp.UnlocksOn)
	assert.Equal(t, "2025-03-12", resp.UnlocksOn.String())
	assert.Contains(t, resp.Message, "2025-03-12")

	// AND: New orders are rejected
	rec = ts.do(t, http.MethodPost, "/api/orders",
		`{"store_id":"s1","date":"2025-03-11","status":"settled","grand_total":"1"}`)
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "day_closed", decodeBody[ErrorResponse](t, rec).Code)
}

func TestOperational_OpenAfterClosingYesterday(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")
	_, err := ts.ledger.Close(context.Background(), "s1", pos.MustParseDate("2025-03-10"))
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/operational", "")

	resp := decodeBody[OperationalDTO](t, rec)
	assert.True(t, resp.Operational)
	require.NotNil(t, resp.LastClosedDate)
	assert.Equal(t, "2025-03-10", resp.LastClosedDate.String())
}

// =============================================================================
// BOOT CHECK
// =============================================================================

func TestBootCheck_NoStores(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/boot-check", "")

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_stores", decodeBody[ErrorResponse](t, rec).Code)
}

func TestBootCheck_ReportOnlyByDefault(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodPost, "/api/boot-check", "")

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[BootReportDTO](t, rec)
	assert.Equal(t, "2025-03-10", report.Date.String())
	assert.Equal(t, []string{"s1"}, report.Pending)
	assert.False(t, report.Complete)
}

func TestBootCheck_AutoCloseFromBody(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodPost, "/api/boot-check", `{"auto_close":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[BootReportDTO](t, rec)
	assert.Equal(t, []string{"s1"}, report.Closed)
	assert.True(t, report.Complete)

	exists, err := ts.ledger.DayCloseExists(context.Background(), "s1", pos.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestScheduler_RunNowRecordsLastReport(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodGet, "/api/boot-check/last", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	sched := NewBootCheckScheduler(ts.ledger, true, 0, nil)
	ts.h.Scheduler = sched

	rec = ts.do(t, http.MethodGet, "/api/boot-check/last", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err := sched.RunNow(context.Background())
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/api/boot-check/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[BootReportDTO](t, rec)
	assert.Equal(t, []string{"s1"}, report.Closed)

	// Interval 0: Start is a no-op and Stop is safe.
	sched.Start()
	sched.Stop()
}

func TestScheduler_TicksUntilStopped(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	sched := NewBootCheckScheduler(ts.ledger, true, 10*time.Millisecond, nil)
	sched.Start()
	t.Cleanup(sched.Stop)

	require.Eventually(t, func() bool {
		_, _, ran := sched.LastReport()
		return ran
	}, 2*time.Second, 10*time.Millisecond)

	// Later ticks find yesterday already closed.
	count, err := ts.store.CountDayCloses(context.Background(), "s1", pos.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	sched := NewBootCheckScheduler(ts.ledger, false, 10*time.Millisecond, nil)
	sched.Start()
	sched.Stop()

	// WHEN: The scheduler is started again after a stop
	sched.Start()

	// THEN: It keeps ticking, and a second Stop does not panic
	before := time.Now()
	require.Eventually(t, func() bool {
		_, ranAt, ran := sched.LastReport()
		return ran && ranAt.After(before)
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotPanics(t, sched.Stop)
	assert.NotPanics(t, sched.Stop)
}

func TestBootCheck_EmptyChunkedBody(t *testing.T) {
	// GIVEN: A request without a body and an unknown length
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")
	req := httptest.NewRequest(http.MethodPost, "/api/boot-check", strings.NewReader(""))
	req.ContentLength = -1

	// WHEN: It is served
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	// THEN: The server default applies instead of a decode error
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"s1"}, decodeBody[BootReportDTO](t, rec).Pending)
}

func TestResetDatabase(t *testing.T) {
	ts := newTestServer(t)
	ts.addStore(t, "s1", "Alpha")

	rec := ts.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stores, err := ts.store.ListStores(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stores)
}
