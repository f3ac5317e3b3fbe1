package billing

import (
	"fmt"

	"dorm-billing-backend/internal/model"
)

// Role identifies who is requesting an invoice transition. It arrives on the
// request context from the gateway in front of this service.
type Role string

const (
	RoleStudent Role = "student"
	RoleManager Role = "manager"
)

// transitions maps a current status to the statuses it may move to.
// PAID is terminal and has no entry.
var transitions = map[model.InvoiceStatus][]model.InvoiceStatus{
	model.InvoiceStatusUnpaid:    {model.InvoiceStatusSubmitted, model.InvoiceStatusPaid},
	model.InvoiceStatusSubmitted: {model.InvoiceStatusPaid, model.InvoiceStatusUnpaid},
}

// CanTransition reports whether from -> to is a legal invoice transition,
// regardless of who asks.
func CanTransition(from, to model.InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates from -> to for the given role. Students may only
// assert payment (UNPAID -> SUBMITTED); managers may confirm, reject or mark
// paid directly.
func CheckTransition(role Role, from, to model.InvoiceStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("illegal invoice transition %s -> %s", from, to)
	}
	switch role {
	case RoleManager:
		return nil
	case RoleStudent:
		if from == model.InvoiceStatusUnpaid && to == model.InvoiceStatusSubmitted {
			return nil
		}
		return fmt.Errorf("role %s may not transition %s -> %s", role, from, to)
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}

// ValidStatus reports whether s is a storable invoice status.
func ValidStatus(s model.InvoiceStatus) bool {
	switch s {
	case model.InvoiceStatusUnpaid, model.InvoiceStatusSubmitted, model.InvoiceStatusPaid:
		return true
	}
	return false
}
