package shiplog

import (
	"sync"
	"sync/atomic"
	"time"
)

// State encapsulates the runtime state of the pipeline
type State struct {
	ShutdownCalled  atomic.Bool
	ProcessorExited atomic.Bool // Tracks if the processor goroutine has exited

	flushRequestChan chan flushRequest // Channel to request a flush
	flushMutex       sync.Mutex        // Protect concurrent Flush calls

	DroppedLogs      atomic.Uint64 // Drops not yet reported by a drop event
	TotalDroppedLogs atomic.Uint64 // Drops over the pipeline lifetime

	ActiveLogChannel atomic.Value // stores chan logRecord

	// Statistics
	HeartbeatSequence  atomic.Uint64
	StartTime          atomic.Value // stores time.Time
	TotalLogsProcessed atomic.Uint64 // Events accepted into a batch
	TotalBatches       atomic.Uint64 // Non-empty batches delivered
	FailedBatches      atomic.Uint64 // Uploads that failed after retries
	HeartbeatUploads   atomic.Uint64 // Empty refresh uploads delivered
}

// flushRequest asks the processor to ship its batch; done receives the result
type flushRequest struct {
	done chan error
}

// Stats is a snapshot of pipeline counters
type Stats struct {
	Processed        uint64
	Dropped          uint64
	Batches          uint64
	FailedBatches    uint64
	HeartbeatUploads uint64
	Uptime           time.Duration
}

// Stats returns current pipeline counters
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Processed:        p.state.TotalLogsProcessed.Load(),
		Dropped:          p.state.TotalDroppedLogs.Load(),
		Batches:          p.state.TotalBatches.Load(),
		FailedBatches:    p.state.FailedBatches.Load(),
		HeartbeatUploads: p.state.HeartbeatUploads.Load(),
	}
	if start, ok := p.state.StartTime.Load().(time.Time); ok {
		s.Uptime = p.clock.Since(start)
	}
	return s
}

// Shutdown stops intake, lets the processor ship what is buffered within the
// drain timeout, and releases the uploader. It waits at most timeout for the
// processor to exit; the default is twice the drain timeout. Calls after the
// first return nil.
func (p *Pipeline) Shutdown(timeout ...time.Duration) (finalErr error) {
	if !p.state.ShutdownCalled.CompareAndSwap(false, true) {
		return nil
	}

	defer func() {
		if err := p.uploader.Close(); err != nil {
			finalErr = combineErrors(finalErr, fmtErrorf("failed to close uploader: %w", err))
		}
	}()

	// Senders check ShutdownCalled under the read lock, none is mid-send here
	p.intakeMu.Lock()
	close(p.getCurrentLogChannel())
	p.intakeMu.Unlock()

	effectiveTimeout := 2 * p.cfg.drainTimeout()
	if len(timeout) > 0 && timeout[0] > 0 {
		effectiveTimeout = timeout[0]
	}

	wait := time.NewTimer(effectiveTimeout)
	defer wait.Stop()

	select {
	case <-p.done:
		if p.drainErr != nil {
			finalErr = combineErrors(finalErr, fmtErrorf("final flush failed: %w", p.drainErr))
		}
	case <-wait.C:
		finalErr = combineErrors(finalErr, fmtErrorf("processor did not exit within timeout (%v)", effectiveTimeout))
	}

	return finalErr
}

// Flush ships buffered events and waits for the upload to finish. It returns
// the delivery error of that upload, if any.
func (p *Pipeline) Flush(timeout time.Duration) error {
	p.state.flushMutex.Lock()
	defer p.state.flushMutex.Unlock()

	if p.state.ShutdownCalled.Load() {
		return fmtErrorf("pipeline already shut down")
	}

	req := flushRequest{done: make(chan error, 1)}

	wait := time.NewTimer(timeout)
	defer wait.Stop()

	select {
	case p.state.flushRequestChan <- req:
	case <-p.done:
		return fmtErrorf("processor exited before flush")
	case <-wait.C:
		return fmtErrorf("failed to send flush request to processor within %v", timeout)
	}

	select {
	case err := <-req.done:
		return err
	case <-wait.C:
		return fmtErrorf("timeout waiting for flush confirmation (%v)", timeout)
	}
}
