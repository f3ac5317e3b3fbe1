// Package billing holds the pure billing computations: meter usage math,
// billing period ordering and the invoice state machine. It performs no I/O.
package billing

// Usage is the result of pricing one service's meter delta.
type Usage struct {
	Consumption int64 `json:"consumption"`
	Amount      int64 `json:"amount"`
}

// ComputeUsage prices the delta between two meter indices. Consumption is
// clamped at zero so an inverted pair of indices can never produce a negative
// bill; callers are expected to reject newIndex < oldIndex as input validation
// before getting here. Amounts are integer VND throughout.
func ComputeUsage(oldIndex, newIndex, unitPrice int64) Usage {
	consumption := newIndex - oldIndex
	if consumption < 0 {
		consumption = 0
	}
	return Usage{
		Consumption: consumption,
		Amount:      consumption * unitPrice,
	}
}
