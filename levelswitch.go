package shiplog

import (
	"sync/atomic"
	"time"
)

// LevelSwitch is the gating threshold shared by a pipeline's loggers and its
// processor. Reads are a single atomic load. Remote directives move the
// effective minimum while the configured level stays fixed and is restored
// when the override is reset or goes stale.
type LevelSwitch struct {
	minimum    atomic.Int32
	active     atomic.Bool
	nextCheck  atomic.Int64 // unix nanos
	refreshed  atomic.Int64 // unix nanos of the last directive
	configured Level
	interval   time.Duration
}

// NewLevelSwitch creates a switch at the configured level. interval is the
// heartbeat interval used for deadlines and staleness.
func NewLevelSwitch(configured Level, interval time.Duration) *LevelSwitch {
	s := &LevelSwitch{configured: configured, interval: interval}
	s.minimum.Store(int32(configured))
	return s
}

// IsEnabled reports whether events at level pass the gate
func (s *LevelSwitch) IsEnabled(level Level) bool {
	return int32(level) >= s.minimum.Load()
}

// MinimumLevel returns the effective minimum
func (s *LevelSwitch) MinimumLevel() Level {
	return Level(s.minimum.Load())
}

// ConfiguredLevel returns the locally configured default
func (s *LevelSwitch) ConfiguredLevel() Level {
	return s.configured
}

// IsActive reports whether a remote override is in effect
func (s *LevelSwitch) IsActive() bool {
	return s.active.Load()
}

// HeartbeatInterval returns the check interval
func (s *LevelSwitch) HeartbeatInterval() time.Duration {
	return s.interval
}

// Update applies a remote directive and marks the override active and fresh
func (s *LevelSwitch) Update(level Level, now time.Time) {
	s.minimum.Store(int32(level))
	s.refreshed.Store(now.UnixNano())
	s.active.Store(true)
}

// Reset drops any override and restores the configured level
func (s *LevelSwitch) Reset() {
	s.active.Store(false)
	s.minimum.Store(int32(s.configured))
}

// MarkChecked pushes the next required check one interval past now
func (s *LevelSwitch) MarkChecked(now time.Time) {
	s.nextCheck.Store(now.Add(s.interval).UnixNano())
}

// NextCheck returns the next required check time
func (s *LevelSwitch) NextCheck() time.Time {
	return time.Unix(0, s.nextCheck.Load())
}

// NeedsCheck reports whether an active override has reached its check deadline
func (s *LevelSwitch) NeedsCheck(now time.Time) bool {
	return s.active.Load() && now.UnixNano() >= s.nextCheck.Load()
}

// ExpireStale resets an override not refreshed within two intervals and
// reports whether it did
func (s *LevelSwitch) ExpireStale(now time.Time) bool {
	if !s.active.Load() {
		return false
	}
	if now.UnixNano()-s.refreshed.Load() <= int64(staleFactor*s.interval) {
		return false
	}
	s.Reset()
	return true
}
