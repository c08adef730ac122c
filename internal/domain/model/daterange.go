package model

import "time"

// DateRange bounds merge timestamps. Since is inclusive, Until is exclusive;
// a nil bound is open.
type DateRange struct {
	Since *time.Time
	Until *time.Time
}

// IsZero returns true when neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Since == nil && r.Until == nil
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.Since != nil && t.Before(*r.Since) {
		return false
	}
	if r.Until != nil && !t.Before(*r.Until) {
		return false
	}
	return true
}
