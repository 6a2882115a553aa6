// Package apperr holds the error kinds shared across layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// UpstreamError reports a failed round trip to the verse upstream.
// Status is the upstream HTTP status, or 0 when no response was received.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
