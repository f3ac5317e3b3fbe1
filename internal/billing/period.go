package billing

import "fmt"

// Period identifies one billing period: a (month, year) pair for one room.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Validate checks that the period is a plausible calendar period.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("invalid month %d: must be 1..12", p.Month)
	}
	if p.Year < 2000 || p.Year > 2200 {
		return fmt.Errorf("invalid year %d", p.Year)
	}
	return nil
}

// Before reports whether p is strictly earlier than q. Year is the primary
// key, month the secondary; ties cannot occur for one room because periods
// are unique per room.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%d/%d", p.Month, p.Year)
}
