package scrape

import (
	"errors"
	"fmt"
)

const (
	CodeRateLimited  = "RATE_LIMITED"
	CodeConsentWall  = "CONSENT_WALL"
	CodeFetchFailure = "FETCH_FAILURE"
)

// CodedError is a typed error used for stable handling across the sync and
// API layers.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// IsRateLimited reports whether err signals an upstream rate-limit
// interstitial. The caller is expected to stop issuing further requests.
func IsRateLimited(err error) bool { return IsCode(err, CodeRateLimited) }

// IsConsentWall reports whether err signals a consent-wall redirect. The
// fetch is unresolvable but harmless; the request is skipped, not failed.
func IsConsentWall(err error) bool { return IsCode(err, CodeConsentWall) }
