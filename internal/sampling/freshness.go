package sampling

import "time"

// Freshness tracks when a data source last delivered a value. A zero
// timestamp means nothing was ever received.
type Freshness struct {
	Horizon time.Duration
	last    time.Time
}

func NewFreshness(horizon time.Duration) Freshness {
	return Freshness{Horizon: horizon}
}

func (f *Freshness) Touch(now time.Time) {
	f.last = now
}

func (f Freshness) LastUpdate() time.Time { return f.last }

func (f Freshness) Valid(now time.Time) bool {
	if f.last.IsZero() {
		return false
	}
	return now.Sub(f.last) < f.Horizon
}
