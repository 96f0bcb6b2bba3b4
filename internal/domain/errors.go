package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("daily request limit reached")
	ErrValidation    = errors.New("invalid request")
	ErrUpstream      = errors.New("upstream service failure")
	ErrUpstreamJob   = errors.New("upstream job failure")
	ErrTimeout       = errors.New("generation timed out")
	ErrOverloaded    = errors.New("too many concurrent generations")
	ErrStoreDisabled = errors.New("history store not configured")
)

// ErrEmptyPrompt is returned before any upstream call is attempted.
var ErrEmptyPrompt = fmt.Errorf("%w: prompt is required", ErrValidation)

// JobFailure is a failure the upstream job reported about itself. Msg is the
// upstream's status word and is safe to show callers; Detail is for logs.
type JobFailure struct {
	Msg    string
	Detail string
}

func (e *JobFailure) Error() string {
	if e.Detail != "" {
		return ErrUpstreamJob.Error() + ": " + e.Detail
	}
	return ErrUpstreamJob.Error() + ": " + e.Msg
}

func (e *JobFailure) Unwrap() error {
	return ErrUpstreamJob
}
