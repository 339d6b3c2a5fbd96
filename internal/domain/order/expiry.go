package order

import "time"

// Timeouts bound how long an order may sit in each waiting status before it
// is considered expired. A zero duration disables that timer.
type Timeouts struct {
	Ongoing    time.Duration
	Validation time.Duration
	Payment    time.Duration
}

func (t Timeouts) forStatus(s Status) time.Duration {
	switch s {
	case StatusOngoing:
		return t.Ongoing
	case StatusAwaitingValidation:
		return t.Validation
	case StatusAwaitingPayment:
		return t.Payment
	}
	return 0
}

// IsLogicallyExpired reports whether an order in status s, last updated at
// updatedAt, has outlived its timer at now.
func (t Timeouts) IsLogicallyExpired(s Status, updatedAt, now time.Time) bool {
	limit := t.forStatus(s)
	if limit <= 0 {
		return false
	}
	return now.Sub(updatedAt) > limit
}

// EffectiveStatus is the status the order has at now once timers are applied,
// whether or not the sweeper has persisted the expiry yet.
func (t Timeouts) EffectiveStatus(o *Order, now time.Time) Status {
	if t.IsLogicallyExpired(o.Status, o.UpdatedAt, now) {
		return StatusExpired
	}
	return o.Status
}
