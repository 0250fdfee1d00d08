/*
handlers.go - HTTP API handlers for the day-close engine

PURPOSE:
  Exposes stores, orders and the day-close ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the dayclose package.

ENDPOINTS:
  Stores:
    GET    /api/stores                          List stores
    POST   /api/stores                          Create or update a store
    GET    /api/stores/{id}                     Store details

  Orders:
    POST   /api/orders                          Record an order (blocked while the day is closed)
    GET    /api/orders/status?date=             Settled/voided aggregate for a date

  Day close:
    GET    /api/stores/{id}/day-close/{date}    Record for store and date
    POST   /api/stores/{id}/day-close           Close a working date
    GET    /api/day-close                       History (store_id, from, to, limit)
    GET    /api/day-close/summary               Totals over the same filter

  Gate / boot:
    GET    /api/operational                     Operational gate
    POST   /api/boot-check                      Run the boot-time check
    GET    /api/boot-check/last                 Last scheduled boot report

ERROR HANDLING:
  Errors are returned as JSON (ErrorResponse) with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Store or record not found
  - 409: Day already closed, no stores
  - 423: Day closed, orders rejected
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Login and permissions are outside this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - dayclose/ledger.go: Domain operations
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/pos-engine/dayclose"
	"github.com/warp/pos-engine/pos"
	"github.com/warp/pos-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Ledger    *dayclose.Ledger
	Scheduler *BootCheckScheduler // optional

	// AutoClose is the default for POST /api/boot-check.
	AutoClose bool

	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewHandler creates a new handler with the given store and ledger.
func NewHandler(store *sqlite.Store, ledger *dayclose.Ledger, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		validate: newValidator(),
		log:      logger.WithField("component", "api"),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return pos.OrderStatus(fl.Field().String()).Valid()
	})
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// STORE HANDLERS
// =============================================================================

// ListStores returns all stores.
// GET /api/stores
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.Store.ListStores(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list stores", err)
		return
	}

	dtos := make([]StoreDTO, len(stores))
	for i, st := range stores {
		dtos[i] = toStoreDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStore creates a store, or updates it when the ID exists.
// POST /api/stores
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req CreateStoreRequest
	if !h.decode(w, r, &req) {
		return
	}

	st, err := h.Store.SaveStore(r.Context(), pos.Store{
		ID:        req.ID,
		Name:      strings.TrimSpace(req.Name),
		Location:  req.Location,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save store", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreDTO(st))
}

// GetStore returns a single store.
// GET /api/stores/{id}
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.GetStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to get store")
		return
	}
	writeJSON(w, http.StatusOK, toStoreDTO(st))
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// CreateOrder records an order for an existing store.
// POST /api/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	// Validated as YYYY-MM-DD and numeric above.
	date := pos.MustParseDate(req.Date)
	total, err := decimal.NewFromString(req.GrandTotal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid grand_total", err)
		return
	}

	if _, err := h.Store.GetStore(ctx, req.StoreID); err != nil {
		h.writeDomainError(w, err, "Failed to get store")
		return
	}

	order, err := h.Store.SaveOrder(ctx, pos.Order{
		ID:         req.ID,
		StoreID:    req.StoreID,
		Date:       date,
		Status:     pos.OrderStatus(req.Status),
		GrandTotal: total,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(order))
}

// OrdersStatus aggregates settled and voided orders of a date across all
// stores. Defaults to today.
// GET /api/orders/status?date=YYYY-MM-DD
func (h *Handler) OrdersStatus(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r.URL.Query().Get("date"), "date")
	if !ok {
		return
	}
	if date.IsZero() {
		date = h.Ledger.Today()
	}

	summary, err := h.Ledger.OrdersStatus(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate orders", err)
		return
	}
	writeJSON(w, http.StatusOK, OrderSummaryDTO{
		Date:          summary.Date,
		SettledOrders: summary.SettledOrders,
		TotalAmount:   summary.TotalAmount,
		VoidedOrders:  summary.VoidedOrders,
	})
}

// =============================================================================
// DAY CLOSE HANDLERS
// =============================================================================

// GetDayClose returns the record for a store and working date.
// GET /api/stores/{id}/day-close/{date}
func (h *Handler) GetDayClose(w http.ResponseWriter, r *http.Request) {
	date, err := pos.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	storeID := chi.URLParam(r, "id")
	rec, err := h.Ledger.GetDayClose(r.Context(), storeID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get day close", err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "Day not closed",
			Code:  "not_closed",
		})
		return
	}
	writeJSON(w, http.StatusOK, toDayCloseDTO(*rec))
}

// CloseDay freezes a working date for a store.
// Unguarded closes append unconditionally; guarded closes reject duplicates.
// POST /api/stores/{id}/day-close
func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	var req CloseDayRequest
	if !h.decode(w, r, &req) {
		return
	}

	storeID := chi.URLParam(r, "id")
	date := pos.MustParseDate(req.WorkingDate)

	var (
		rec pos.DayCloseRecord
		err error
	)
	if req.Guarded {
		rec, err = h.Ledger.CloseOnce(r.Context(), storeID, date)
	} else {
		rec, err = h.Ledger.Close(r.Context(), storeID, date)
	}
	if err != nil {
		h.writeDomainError(w, err, "Failed to close day")
		return
	}
	writeJSON(w, http.StatusCreated, toDayCloseDTO(rec))
}

// ListDayCloses returns the day-close history, newest first.
// GET /api/day-close?store_id=&from=&to=&limit=
func (h *Handler) ListDayCloses(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.closeFilter(w, r)
	if !ok {
		return
	}

	records, err := h.Ledger.History(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err, "Failed to list day closes")
		return
	}
	writeJSON(w, http.StatusOK, toDayCloseDTOs(records))
}

// DayCloseSummary totals the filtered history.
// GET /api/day-close/summary?store_id=&from=&to=
func (h *Handler) DayCloseSummary(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.closeFilter(w, r)
	if !ok {
		return
	}

	sum, err := h.Ledger.Summarize(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err, "Failed to summarize day closes")
		return
	}
	writeJSON(w, http.StatusOK, toCloseSummaryDTO(sum))
}

func (h *Handler) closeFilter(w http.ResponseWriter, r *http.Request) (pos.DayCloseFilter, bool) {
	q := r.URL.Query()
	filter := pos.DayCloseFilter{StoreID: q.Get("store_id")}

	var ok bool
	if filter.From, ok = h.dateParam(w, q.Get("from"), "from"); !ok {
		return filter, false
	}
	if filter.To, ok = h.dateParam(w, q.Get("to"), "to"); !ok {
		return filter, false
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Invalid query parameter",
				Code:   "validation",
				Fields: map[string]string{"limit": "must be a non-negative integer"},
			})
			return filter, false
		}
		filter.Limit = limit
	}
	return filter, true
}

// =============================================================================
// OPERATIONAL GATE
// =============================================================================

// Operational reports whether the application may be used today.
// GET /api/operational
func (h *Handler) Operational(w http.ResponseWriter, r *http.Request) {
	status, err := h.Ledger.Gate(r.Context())
	if err != nil {
		h.log.WithError(err).Error("operational check failed")
		writeJSON(w, http.StatusServiceUnavailable, OperationalDTO{
			Operational: false,
			Message:     "Unable to verify the day close status.",
		})
		return
	}
	writeJSON(w, http.StatusOK, toOperationalDTO(status))
}

// RequireOperational rejects requests while the current day is closed.
func (h *Handler) RequireOperational(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, message := h.Ledger.IsOperational(r.Context())
		if !ok {
			writeJSON(w, http.StatusLocked, ErrorResponse{
				Error: message,
				Code:  "day_closed",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// BOOT CHECK
// =============================================================================

// BootCheck runs the boot-time check for yesterday.
// POST /api/boot-check
func (h *Handler) BootCheck(w http.ResponseWriter, r *http.Request) {
	var req BootCheckRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	autoClose := h.AutoClose
	if req.AutoClose != nil {
		autoClose = *req.AutoClose
	}

	report, err := h.Ledger.BootCheck(r.Context(), autoClose)
	if err != nil {
		h.writeDomainError(w, err, "Boot check failed")
		return
	}
	writeJSON(w, http.StatusOK, toBootReportDTO(report))
}

// LastBootReport returns the most recent scheduled boot report.
// GET /api/boot-check/last
func (h *Handler) LastBootReport(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotFound, "Boot check scheduler not running", nil)
		return
	}
	report, ranAt, ok := h.Scheduler.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "No boot check has run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		BootReportDTO
		RanAt string `json:"ran_at"`
	}{toBootReportDTO(report), ranAt.UTC().Format(time.RFC3339)})
}

// ResetDatabase clears all data. For development only.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.log.Warn("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeJSON(w, r, dst, false)
}

// decodeOptional is decode for bodies that may be empty, whatever the
// Content-Length says. An empty body leaves dst untouched.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeJSON(w, r, dst, true)
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = validationMessage(fe)
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Validation failed",
				Code:   "validation",
				Fields: fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "order_status":
		return "must be one of: open held settled voided"
	case "numeric":
		return "must be a number"
	case "max":
		return "too long"
	}
	return "invalid"
}

// dateParam parses an optional YYYY-MM-DD value. Empty yields the zero Date.
func (h *Handler) dateParam(w http.ResponseWriter, raw, name string) (pos.Date, bool) {
	if raw == "" {
		return pos.Date{}, true
	}
	d, err := pos.ParseDate(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Invalid query parameter",
			Code:   "validation",
			Fields: map[string]string{name: "must be a date (YYYY-MM-DD)"},
		})
		return pos.Date{}, false
	}
	return d, true
}

// writeDomainError maps ledger and store errors to HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, message string) {
	var (
		closed *pos.DayAlreadyClosedError
		verr   *pos.ValidationError
	)
	switch {
	case errors.As(err, &closed):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Day already closed",
			Code:    "day_already_closed",
			Details: err.Error(),
		})
	case errors.Is(err, pos.ErrNoStores):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "No stores found",
			Code:  "no_stores",
		})
	case errors.Is(err, pos.ErrStoreNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Store not found",
			Code:    "store_not_found",
			Details: err.Error(),
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Code:   "validation",
			Fields: verr.Fields,
		})
	case pos.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
