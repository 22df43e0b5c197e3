package shiplog

import (
	"context"
	"errors"
	"fmt"

	"github.com/lixenwraith/shiplog/client"
	"github.com/lixenwraith/shiplog/event"
)

// batch is the accumulator owned by the processor goroutine
type batch struct {
	events []*event.Event
	limit  int
}

func newBatch(limit int) *batch {
	return &batch{events: make([]*event.Event, 0, min(limit, 1024)), limit: limit}
}

// detach hands off the buffered events and starts a fresh batch
func (b *batch) detach() []*event.Event {
	events := b.events
	b.events = make([]*event.Event, 0, min(b.limit, 1024))
	return events
}

// processEvents is the main processing loop running in a separate goroutine
func (p *Pipeline) processEvents(ch <-chan logRecord) {
	defer close(p.done)
	defer p.state.ProcessorExited.Store(true)

	timers := p.setupProcessingTimers()
	defer p.closeProcessingTimers(timers)

	b := newBatch(int(p.cfg.BatchSizeLimit))

	for {
		select {
		case record, ok := <-ch:
			if !ok {
				// Intake closed: ship the remainder and exit
				p.drainErr = p.drain(b, timers)
				return
			}
			_ = p.accept(b, timers, record)

		case <-timers.flushChan():
			_ = p.flushBatch(context.Background(), b, timers)

		case <-timers.heartbeatChan():
			p.handleHeartbeat(b, timers)

		case req := <-p.state.flushRequestChan:
			p.handleFlushRequest(ch, b, timers, req)
		}
	}
}

// accept adds a record to the batch. The first event of a batch arms the
// flush timer; reaching the size limit flushes immediately.
func (p *Pipeline) accept(b *batch, timers *TimerSet, record logRecord) error {
	p.mirrorEvent(record.event)
	p.state.TotalLogsProcessed.Add(1)

	b.events = append(b.events, record.event)
	if len(b.events) == 1 {
		timers.armFlush(p.cfg.flushPeriod())
	}
	if len(b.events) >= b.limit {
		return p.flushBatch(context.Background(), b, timers)
	}
	return nil
}

// flushBatch detaches and uploads the current batch
func (p *Pipeline) flushBatch(ctx context.Context, b *batch, timers *TimerSet) error {
	timers.disarmFlush()
	if len(b.events) == 0 {
		return nil
	}
	return p.upload(ctx, b.detach())
}

// handleFlushRequest takes what was queued when the request arrived, ships
// it, and reports the outcome to the caller. Records enqueued afterwards wait
// for the next batch.
func (p *Pipeline) handleFlushRequest(ch <-chan logRecord, b *batch, timers *TimerSet, req flushRequest) {
	var err error
	queued := len(ch)
	for i := 0; i < queued; i++ {
		record, ok := <-ch
		if !ok {
			break
		}
		err = combineErrors(err, p.accept(b, timers, record))
	}

	err = combineErrors(err, p.flushBatch(context.Background(), b, timers))
	req.done <- err
}

// drain ships the final batch within the drain timeout
func (p *Pipeline) drain(b *batch, timers *TimerSet) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.drainTimeout())
	defer cancel()
	return p.flushBatch(ctx, b, timers)
}

// upload sends events and applies the returned directive. An empty slice is
// an override refresh. Failures are counted, reported, and returned.
func (p *Pipeline) upload(ctx context.Context, events []*event.Event) error {
	p.levels.MarkChecked(p.clock.Now())

	res, err := p.uploader.Upload(ctx, events)
	if err != nil {
		if !errors.Is(err, ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		}
		p.state.FailedBatches.Add(1)
		p.internalLog("failed to deliver batch of %d events: %v", len(events), err)
		if p.onFailure != nil {
			p.onFailure(err, len(events))
		}
		return err
	}

	if len(events) > 0 {
		p.state.TotalBatches.Add(1)
	} else {
		p.state.HeartbeatUploads.Add(1)
	}
	p.applyDirective(res)
	return nil
}

// applyDirective moves the level switch per the collector's answer. An
// unreadable directive keeps the current level; no directive drops any
// override.
func (p *Pipeline) applyDirective(res client.Result) {
	switch {
	case res.DirectiveErr != nil:
		p.internalLog("ignoring level directive: %v", res.DirectiveErr)
	case !res.HasDirective:
		if p.levels.IsActive() {
			p.levels.Reset()
		}
	default:
		p.levels.Update(res.Level, p.clock.Now())
	}
}

// mirrorEvent writes the event to the console target, if enabled
func (p *Pipeline) mirrorEvent(ev *event.Event) {
	if p.mirror == nil {
		return
	}
	data := p.mirror.FormatEvent(ev)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if _, err := p.stdout.Write(data); err != nil {
		p.internalLog("failed to write to console: %v", err)
	}
}
