package client

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveryFailed reports a batch the collector did not accept
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrLevelDirectiveInvalid reports a level directive that could not be parsed
	ErrLevelDirectiveInvalid = errors.New("level directive invalid")
)

// StatusError is a non-success HTTP status from the collector
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("collector returned status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("collector returned status %d", e.Code)
}

// DeliveryError is returned by Upload when a batch could not be delivered.
// It matches ErrDeliveryFailed with errors.Is.
type DeliveryError struct {
	BatchID    string
	StatusCode int // 0 on transport failure
	Attempts   int
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%v: batch %s after %d attempt(s): %v", ErrDeliveryFailed, e.BatchID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

// DirectiveError carries the unparsable directive text
type DirectiveError struct {
	Text string
	Err  error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%v: %q: %v", ErrLevelDirectiveInvalid, e.Text, e.Err)
}

func (e *DirectiveError) Unwrap() error {
	return e.Err
}

func (e *DirectiveError) Is(target error) bool {
	return target == ErrLevelDirectiveInvalid
}
