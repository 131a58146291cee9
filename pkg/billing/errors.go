package billing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("billing: access key id and secret are required")
	ErrNotConfigured      = errors.New("billing: provider is not configured")
)

// APIError carries the provider's error code alongside the message so
// callers can branch on fatal vs transient failures.
type APIError struct {
	Code     string
	Message  string
	Details  string
	HTTPCode int
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("billing API error [%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("billing API error [%s]: %s", e.Code, e.Message)
}

// DataNotReadyError signals the provider has not finished generating the
// requested billing slice. Callers treat it as a soft stop, not a failure.
type DataNotReadyError struct {
	BillingDate string
}

func (e *DataNotReadyError) Error() string {
	return fmt.Sprintf("billing data for %s is not generated yet", e.BillingDate)
}

// IsDataNotReady reports whether err indicates a not-yet-generated report
func IsDataNotReady(err error) bool {
	var nr *DataNotReadyError
	if errors.As(err, &nr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(strings.ToLower(apiErr.Message), "not ready") ||
			apiErr.Code == "NotFound.BillingDate"
	}
	return false
}

// IsAuthError reports whether err is a credential problem worth failing
// fast on instead of retrying.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "Forbidden", "Unauthorized", "AccessDenied":
		return true
	}
	return false
}

// IsRateLimitError reports whether err is the provider throttling us
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"qpslimitexceeded", "flowlimitexceeded", "throttling", "rate limit", "too many requests"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// IsRetryableError reports whether a call failing with err is worth
// repeating. Throttling, timeouts, and transient 5xx conditions qualify.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryable := []string{
		"timeout",
		"connection",
		"network",
		"internal error",
		"internalerror",
		"service unavailable",
		"serviceunavailable",
		"temporarily unavailable",
		"try again",
		"502",
		"503",
		"504",
	}
	for _, marker := range retryable {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
