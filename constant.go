package shiplog

import (
	"time"

	"github.com/lixenwraith/shiplog/event"
)

// Level is the ordered event severity
type Level = event.Level

// Severity levels
const (
	LevelTrace       = event.LevelTrace
	LevelDebug       = event.LevelDebug
	LevelInformation = event.LevelInformation
	LevelWarning     = event.LevelWarning
	LevelError       = event.LevelError
	LevelCritical    = event.LevelCritical
)

// Well-known property names
const (
	// OriginalFormatKey is the bag key carrying a message template
	OriginalFormatKey = "{OriginalFormat}"

	PropertyEventID       = "EventId"
	PropertyScope         = "Scope"
	PropertySourceContext = "SourceContext"
	PropertyState         = "State"
	PropertyMessage       = "Message"
	PropertyDroppedCount  = "DroppedCount"

	// sourceContextSelf names events the pipeline emits about itself
	sourceContextSelf = "shiplog"
)

// Timers
const (
	// Minimum wait time used for polling and request handoff
	minWaitTime = 10 * time.Millisecond
	// staleFactor heartbeat intervals without refresh expire an override
	staleFactor = 2
)

// Capture limits
const (
	maxCaptureDepth = 10
	maxCaptureItems = 1000
)
