package radio

import "time"

// Stats tracks the spacing between received frames.
type Stats struct {
	last  time.Time
	sum   time.Duration
	Max   time.Duration
	Count uint64
}

// Observe records a frame at now and returns the gap to the previous one.
// The first frame has no gap.
func (s *Stats) Observe(now time.Time) time.Duration {
	if s.last.IsZero() {
		s.last = now
		return 0
	}
	d := now.Sub(s.last)
	s.last = now
	s.sum += d
	s.Count++
	s.Max = max(s.Max, d)
	return d
}

func (s *Stats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.sum / time.Duration(s.Count)
}
