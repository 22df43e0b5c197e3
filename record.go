package shiplog

import (
	"fmt"
	"strings"

	"github.com/lixenwraith/shiplog/event"
	"github.com/lixenwraith/shiplog/template"
)

var dropTemplate = template.Parse("Dropped {" + PropertyDroppedCount + "} log events")

// logRecord is one intake channel item
type logRecord struct {
	event           *event.Event
	unreportedDrops uint64 // Non-zero for drop reports, carries the count for recovery
}

// getCurrentLogChannel safely retrieves the current intake channel
func (p *Pipeline) getCurrentLogChannel() chan logRecord {
	chVal := p.state.ActiveLogChannel.Load()
	return chVal.(chan logRecord)
}

// sendRecord hands a record to the processor without blocking
func (p *Pipeline) sendRecord(record logRecord) {
	if !p.trySend(record) {
		p.handleFailedSend(record)
		return
	}

	// Channel had room, report earlier drops if any
	if record.unreportedDrops == 0 {
		droppedCount := p.state.DroppedLogs.Swap(0)
		if droppedCount > 0 {
			ev := event.New(p.clock.Now(), LevelWarning, dropTemplate, nil, []event.Property{
				{Name: PropertyDroppedCount, Value: event.ScalarValue(droppedCount)},
				{Name: PropertySourceContext, Value: event.ScalarValue(sourceContextSelf)},
			})
			// No success check is required, count is restored if it fails
			p.sendRecord(logRecord{event: ev, unreportedDrops: droppedCount})
		}
	}
}

// trySend enqueues under the intake read lock. Shutdown closes the channel
// only while holding the write lock, so a send never races the close.
func (p *Pipeline) trySend(record logRecord) bool {
	p.intakeMu.RLock()
	defer p.intakeMu.RUnlock()

	if p.state.ShutdownCalled.Load() {
		return false
	}

	select {
	case p.getCurrentLogChannel() <- record:
		return true
	default:
		return false
	}
}

// handleFailedSend restores or increments the drop counter
func (p *Pipeline) handleFailedSend(record logRecord) {
	if record.unreportedDrops > 0 {
		p.state.DroppedLogs.Add(record.unreportedDrops)
		return
	}
	p.state.DroppedLogs.Add(1)
	p.state.TotalDroppedLogs.Add(1)
}

// internalLog writes pipeline diagnostics, if enabled. The pipeline never
// logs through itself.
func (p *Pipeline) internalLog(format string, args ...any) {
	if !p.cfg.InternalErrorsToStderr {
		return
	}

	if !strings.HasPrefix(format, errPrefix) {
		format = errPrefix + format
	}
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}

	p.diagMu.Lock()
	fmt.Fprintf(p.diagnostics, format, args...)
	p.diagMu.Unlock()
}
