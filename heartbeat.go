package shiplog

import (
	"context"
	"fmt"
	"runtime"

	"github.com/lixenwraith/shiplog/event"
	"github.com/lixenwraith/shiplog/template"
)

var statsTemplate = template.Parse(
	"Shipper statistics: {Processed} processed, {TotalDropped} dropped, {FailedBatches} failed batches")

// handleHeartbeat processes a heartbeat tick. A stale override is dropped;
// an active one past its deadline is refreshed by an empty upload, but only
// while no events are buffered since any upload refreshes it.
func (p *Pipeline) handleHeartbeat(b *batch, timers *TimerSet) {
	now := p.clock.Now()

	if p.levels.ExpireStale(now) {
		p.internalLog("level override not refreshed, restored %s", p.levels.ConfiguredLevel())
	}

	if len(b.events) == 0 && p.levels.NeedsCheck(now) {
		_ = p.upload(context.Background(), nil)
	}

	if p.cfg.StatsHeartbeat && !now.Before(timers.nextStats) {
		timers.nextStats = now.Add(p.cfg.heartbeatInterval())
		p.logProcHeartbeat(b, timers)
	}
}

// logProcHeartbeat ships pipeline and runtime statistics as an event
func (p *Pipeline) logProcHeartbeat(b *batch, timers *TimerSet) {
	if p.state.ShutdownCalled.Load() {
		return
	}

	sequence := p.state.HeartbeatSequence.Add(1)
	stats := p.Stats()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	props := []event.Property{
		{Name: "Type", Value: event.ScalarValue("proc")},
		{Name: "Sequence", Value: event.ScalarValue(sequence)},
		{Name: "UptimeHours", Value: event.ScalarValue(fmt.Sprintf("%.2f", stats.Uptime.Hours()))},
		{Name: "Processed", Value: event.ScalarValue(stats.Processed)},
		{Name: "TotalDropped", Value: event.ScalarValue(stats.Dropped)},
		{Name: "FailedBatches", Value: event.ScalarValue(stats.FailedBatches)},
		{Name: "Batches", Value: event.ScalarValue(stats.Batches)},
		{Name: "MinimumLevel", Value: event.ScalarValue(p.levels.MinimumLevel().String())},
		{Name: "OverrideActive", Value: event.ScalarValue(p.levels.IsActive())},
		{Name: "AllocMB", Value: event.ScalarValue(fmt.Sprintf("%.2f", float64(memStats.Alloc)/(1000*1000)))},
		{Name: "NumGoroutine", Value: event.ScalarValue(runtime.NumGoroutine())},
		{Name: PropertySourceContext, Value: event.ScalarValue(sourceContextSelf)},
	}

	ev := event.New(p.clock.Now(), LevelInformation, statsTemplate, nil, props)
	_ = p.accept(b, timers, logRecord{event: ev})
}
