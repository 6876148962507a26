package portal

import (
	"errors"
	"fmt"
)

// Sentinel errors classify cycle failures. Transport errors stay as the
// wrapped *url.Error from net/http; everything else maps onto one of these.
var (
	// ErrTokenMissing means the portal page carried no usable magic token.
	// This usually indicates a changed portal page, so the orchestrator does
	// not retry it within the same cycle.
	ErrTokenMissing = errors.New("portal: token extraction failed")

	// ErrRedirectMissing means the fetched page carried no redirect marker.
	ErrRedirectMissing = errors.New("portal: redirect extraction failed")

	// ErrVerificationFailed means the portal accepted the login POST but a
	// follow-up probe still showed no internet. Most likely bad credentials.
	ErrVerificationFailed = errors.New("portal: verification failed")
)

// UnexpectedStatusError reports a connectivity probe that answered with a
// status outside the recognised set. It is a hard failure for the cycle,
// never retried within it.
type UnexpectedStatusError struct {
	URL        string
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("portal: unexpected status %d from %s", e.StatusCode, e.URL)
}

// RejectedError reports a login POST that the portal answered with a
// non-2xx/3xx status. The body is kept for diagnostics.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("portal: login rejected with status %d", e.StatusCode)
}
