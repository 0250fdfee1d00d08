/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in package pos from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Stores:     StoreDTO, CreateStoreRequest
  Orders:     OrderDTO, CreateOrderRequest, OrderSummaryDTO
  Day close:  DayCloseDTO, CloseDayRequest, CloseSummaryDTO
  Gate:       OperationalDTO
  Boot check: BootCheckRequest, BootReportDTO

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers run
  them before any date or decimal parsing.

SEE ALSO:
  - handlers.go: Uses these types
  - pos/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/pos-engine/dayclose"
	"github.com/warp/pos-engine/pos"
)

// =============================================================================
// STORES
// =============================================================================

// StoreDTO represents a store in API responses.
type StoreDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	ManagerID string    `json:"manager_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateStoreRequest is the body of POST /api/stores.
type CreateStoreRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	Location  string `json:"location" validate:"max=200"`
	ManagerID string `json:"manager_id" validate:"max=64"`
}

func toStoreDTO(st pos.Store) StoreDTO {
	return StoreDTO{
		ID:        st.ID,
		Name:      st.Name,
		Location:  st.Location,
		ManagerID: st.ManagerID,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

// =============================================================================
// ORDERS
// =============================================================================

// OrderDTO represents an order in API responses.
type OrderDTO struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	Date       pos.Date        `json:"date"`
	Status     pos.OrderStatus `json:"status"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateOrderRequest is the body of POST /api/orders.
type CreateOrderRequest struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	StoreID    string `json:"store_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Status     string `json:"status" validate:"required,order_status"`
	GrandTotal string `json:"grand_total" validate:"required,numeric"`
}

// OrderSummaryDTO is the settled/voided aggregate of one date.
type OrderSummaryDTO struct {
	Date          pos.Date        `json:"date"`
	SettledOrders int             `json:"settled_orders"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	VoidedOrders  int             `json:"voided_orders"`
}

func toOrderDTO(o pos.Order) OrderDTO {
	return OrderDTO{
		ID:         o.ID,
		StoreID:    o.StoreID,
		Date:       o.Date,
		Status:     o.Status,
		GrandTotal: o.GrandTotal,
		CreatedAt:  o.CreatedAt,
	}
}

// =============================================================================
// DAY CLOSE
// =============================================================================

// DayCloseDTO represents a day-close record in API responses.
type DayCloseDTO struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"store_id"`
	WorkingDate     pos.Date        `json:"working_date"`
	NextWorkingDate pos.Date        `json:"next_working_date"`
	RunningOrders   int             `json:"running_orders"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	VoidedOrders    int             `json:"voided_orders"`
	ClosedAt        time.Time       `json:"closed_at"`
}

// CloseDayRequest is the body of POST /api/stores/{id}/day-close.
// Guarded closes fail with 409 when the day already has a record.
type CloseDayRequest struct {
	WorkingDate string `json:"working_date" validate:"required,datetime=2006-01-02"`
	Guarded     bool   `json:"guarded"`
}

// CloseSummaryDTO totals a filtered day-close history.
type CloseSummaryDTO struct {
	DaysClosed    int             `json:"days_closed"`
	RunningOrders int             `json:"running_orders"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	VoidedOrders  int             `json:"voided_orders"`
	FirstDate     *pos.Date       `json:"first_date,omitempty"`
	LastDate      *pos.Date       `json:"last_date,omitempty"`
}

func toDayCloseDTO(rec pos.DayCloseRecord) DayCloseDTO {
	return DayCloseDTO{
		ID:              rec.ID,
		StoreID:         rec.StoreID,
		WorkingDate:     rec.WorkingDate,
		NextWorkingDate: rec.NextWorkingDate,
		RunningOrders:   rec.RunningOrders,
		TotalAmount:     rec.TotalAmount,
		VoidedOrders:    rec.VoidedOrders,
		ClosedAt:        rec.ClosedAt,
	}
}

func toDayCloseDTOs(records []pos.DayCloseRecord) []DayCloseDTO {
	dtos := make([]DayCloseDTO, len(records))
	for i, rec := range records {
		dtos[i] = toDayCloseDTO(rec)
	}
	return dtos
}

func toCloseSummaryDTO(sum pos.CloseSummary) CloseSummaryDTO {
	dto := CloseSummaryDTO{
		DaysClosed:    sum.DaysClosed,
		RunningOrders: sum.RunningOrders,
		TotalAmount:   sum.TotalAmount,
		VoidedOrders:  sum.VoidedOrders,
	}
	if !sum.FirstDate.IsZero() {
		first, last := sum.FirstDate, sum.LastDate
		dto.FirstDate = &first
		dto.LastDate = &last
	}
	return dto
}

// =============================================================================
// OPERATIONAL GATE
// =============================================================================

// OperationalDTO is the answer of GET /api/operational.
type OperationalDTO struct {
	Operational    bool      `json:"operational"`
	Message        string    `json:"message"`
	Today          *pos.Date `json:"today,omitempty"`
	LastClosedDate *pos.Date `json:"last_closed_date,omitempty"`
	UnlocksOn      *pos.Date `json:"unlocks_on,omitempty"`
}

func toOperationalDTO(status dayclose.GateStatus) OperationalDTO {
	today := status.Today
	dto := OperationalDTO{
		Operational: status.Operational,
		Message:     status.Message,
		Today:       &today,
	}
	if status.LastClose != nil {
		last := status.LastClose.WorkingDate
		dto.LastClosedDate = &last
	}
	if unlocks := status.UnlocksOn(); !unlocks.IsZero() {
		dto.UnlocksOn = &unlocks
	}
	return dto
}

// =============================================================================
// BOOT CHECK
// =============================================================================

// BootCheckRequest is the optional body of POST /api/boot-check.
// A nil AutoClose falls back to the server setting.
type BootCheckRequest struct {
	AutoClose *bool `json:"auto_close"`
}

// BootReportDTO is the outcome of a boot check.
type BootReportDTO struct {
	Date          pos.Date `json:"date"`
	Complete      bool     `json:"complete"`
	Closed        []string `json:"closed"`
	AlreadyClosed []string `json:"already_closed"`
	Pending       []string `json:"pending"`
	Failed        []string `json:"failed"`
}

func toBootReportDTO(r dayclose.BootReport) BootReportDTO {
	return BootReportDTO{
		Date:          r.Date,
		Complete:      r.Complete(),
		Closed:        nonNil(r.Closed),
		AlreadyClosed: nonNil(r.AlreadyClosed),
		Pending:       nonNil(r.Pending),
		Failed:        nonNil(r.Failed),
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
