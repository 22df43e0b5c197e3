package shiplog

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerSet holds the timers used by the processor
type TimerSet struct {
	clock           clockwork.Clock
	flushTimer      clockwork.Timer // Armed by the first event of a batch
	heartbeatTicker clockwork.Ticker
	nextStats       time.Time // Next statistics event
}

// setupProcessingTimers creates the heartbeat ticker. It ticks at the finer
// of the flush period and the heartbeat interval so override deadlines and
// staleness are observed promptly.
func (p *Pipeline) setupProcessingTimers() *TimerSet {
	timers := &TimerSet{clock: p.clock}

	tick := min(p.cfg.flushPeriod(), p.cfg.heartbeatInterval())
	if tick < minWaitTime {
		tick = minWaitTime
	}
	timers.heartbeatTicker = p.clock.NewTicker(tick)

	return timers
}

// closeProcessingTimers stops all active timers
func (p *Pipeline) closeProcessingTimers(timers *TimerSet) {
	timers.disarmFlush()
	if timers.heartbeatTicker != nil {
		timers.heartbeatTicker.Stop()
	}
}

// armFlush starts the batch age timer unless it is already running
func (t *TimerSet) armFlush(d time.Duration) {
	if t.flushTimer != nil {
		return
	}
	t.flushTimer = t.clock.NewTimer(d)
}

// disarmFlush stops the batch age timer; a pending fire is discarded
func (t *TimerSet) disarmFlush() {
	if t.flushTimer == nil {
		return
	}
	t.flushTimer.Stop()
	t.flushTimer = nil
}

// flushChan returns the batch timer channel, nil while disarmed
func (t *TimerSet) flushChan() <-chan time.Time {
	if t.flushTimer == nil {
		return nil
	}
	return t.flushTimer.Chan()
}

func (t *TimerSet) heartbeatChan() <-chan time.Time {
	return t.heartbeatTicker.Chan()
}
