package model

import "time"

// InvoiceType distinguishes what an invoice bills for.
type InvoiceType string

const (
	InvoiceTypeRoomFee    InvoiceType = "ROOM_FEE"
	InvoiceTypeUtilityFee InvoiceType = "UTILITY_FEE"
)

// InvoiceStatus is the stored lifecycle state of an invoice. OVERDUE is not a
// stored state; it is derived per response as UNPAID with a past due date.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid    InvoiceStatus = "UNPAID"
	InvoiceStatusSubmitted InvoiceStatus = "SUBMITTED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
)

// Invoice is the billable document for one room's utility period or room-fee
// term. Amount is integer VND and immutable once the payment flow has started;
// status changes go through the store's conditional update, never a raw write.
type Invoice struct {
	ID           int64         `gorm:"primaryKey" json:"id"`
	InvoiceCode  string        `gorm:"uniqueIndex;size:64;not null" json:"invoice_code"`
	RoomID       int64         `gorm:"index;not null" json:"room_id"`
	UsageID      *int64        `gorm:"uniqueIndex" json:"usage_id"`
	Type         InvoiceType   `gorm:"size:16;not null" json:"type"`
	Status       InvoiceStatus `gorm:"size:16;not null;default:'UNPAID'" json:"status"`
	Amount       int64         `gorm:"not null" json:"amount"`
	DueDate      time.Time     `gorm:"not null" json:"due_date"`
	TimeInvoiced time.Time     `gorm:"not null" json:"time_invoiced"`
	PaidAt       *time.Time    `json:"paid_at"`
	CreatedAt    time.Time     `json:"-"`
	UpdatedAt    time.Time     `json:"-"`

	// Associations
	Room  Room          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Usage *MonthlyUsage `gorm:"foreignKey:UsageID" json:"-"`
}

// Overdue reports whether the invoice should display as OVERDUE at t.
func (i *Invoice) Overdue(t time.Time) bool {
	return i.Status == InvoiceStatusUnpaid && i.DueDate.Before(t)
}
