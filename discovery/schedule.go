package discovery

import (
	"time"
)

// Schedule decides when a beacon is due: Burst beacons BurstInterval apart, then one every
// Interval.
//
// Schedule is not safe for concurrent use, it belongs to the IO loop that sends the beacons.
type Schedule struct {
	burst         int
	burstInterval time.Duration
	interval      time.Duration

	sent int
	next time.Time
}

// NewSchedule creates a schedule whose first beacon is due immediately.
func NewSchedule(burst int, burstInterval time.Duration, interval time.Duration) *Schedule {
	return &Schedule{
		burst:         max(burst, 0),
		burstInterval: burstInterval,
		interval:      interval,
	}
}

// Due reports whether a beacon should be sent at now. When it returns true the beacon counts
// as sent and the next one is scheduled.
func (s *Schedule) Due(now time.Time) bool {
	if !s.next.IsZero() && now.Before(s.next) {
		return false
	}

	s.sent++
	if s.sent < s.burst {
		s.next = now.Add(s.burstInterval)
	} else {
		s.next = now.Add(s.interval)
	}

	return true
}
