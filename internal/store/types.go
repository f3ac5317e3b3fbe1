package store

import (
	"time"

	"dorm-billing-backend/internal/billing"
	"dorm-billing-backend/internal/model"
)

// Rates carries the unit prices applied to a reading, flagging per service
// whether the configured fallback default was substituted for a missing
// tariff row.
type Rates struct {
	Electricity         int64 `json:"electricity"`
	Water               int64 `json:"water"`
	ElectricityFallback bool  `json:"electricity_fallback"`
	WaterFallback       bool  `json:"water_fallback"`
}

// RecordUsageInput is the server-side input for recording a meter reading.
// Old indices are never supplied by the client; they are resolved from the
// room's most recent prior period (or zero when none exists).
type RecordUsageInput struct {
	RoomID              int64
	Period              billing.Period
	ElectricityNewIndex int64
	WaterNewIndex       int64
	Now                 time.Time
}

// UsageStatusRow is one line of the manager's per-period billing dashboard:
// a room, whether its reading for the period has been recorded, the
// carry-forward prior indices, and the state of the resulting invoice.
type UsageStatusRow struct {
	RoomID       int64  `json:"room_id"`
	RoomNumber   string `json:"room_number"`
	Floor        int    `json:"floor"`
	BuildingID   int64  `json:"building_id"`
	BuildingName string `json:"building_name"`

	Recorded bool                `json:"recorded"`
	Usage    *model.MonthlyUsage `json:"usage,omitempty"`

	PriorElectricityIndex *int64 `json:"prior_electricity_index,omitempty"`
	PriorWaterIndex       *int64 `json:"prior_water_index,omitempty"`

	InvoiceCode   string `json:"invoice_code,omitempty"`
	InvoiceType   string `json:"invoice_type,omitempty"`
	InvoiceStatus string `json:"invoice_status,omitempty"`
}

// InvoiceRow is an invoice projected for a listing screen, joined with its
// room, building and (for utility invoices) billing period. Status is the
// display status: UNPAID past its due date renders as OVERDUE.
type InvoiceRow struct {
	InvoiceCode  string     `json:"invoice_code"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Amount       int64      `json:"amount"`
	DueDate      time.Time  `json:"due_date"`
	TimeInvoiced time.Time  `json:"time_invoiced"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`

	RoomID       int64  `json:"room_id"`
	RoomNumber   string `json:"room_number"`
	BuildingID   int64  `json:"building_id"`
	BuildingName string `json:"building_name"`

	Month *int `json:"month,omitempty"`
	Year  *int `json:"year,omitempty"`
}

// DisplayStatus renders an invoice's status for listings, deriving OVERDUE
// from an unpaid invoice past its due date. OVERDUE is never stored.
func DisplayStatus(inv *model.Invoice, now time.Time) string {
	if inv.Overdue(now) {
		return "OVERDUE"
	}
	return string(inv.Status)
}
