package importer

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedKind  = errors.New("importer: unsupported cloud account kind")
	ErrNoBillingSource  = errors.New("importer: billing source is not configured")
	ErrNoCostModel      = errors.New("importer: account has no cost model")
	ErrAccountDisabled  = errors.New("importer: cloud account is disabled")
	ErrRetriesExhausted = errors.New("importer: retries exhausted")
)

// ReportNotReadyError signals that the provider has no completed report for a
// day yet. It soft-cancels the remaining day loop for this run; a later run
// catches up from the same watermark.
type ReportNotReadyError struct {
	Day time.Time
}

func (e *ReportNotReadyError) Error() string {
	return fmt.Sprintf("importer: report not ready for %s", e.Day.Format("2006-01-02"))
}

// FatalProviderError marks errors that must never be retried (auth failure,
// not found, unsupported configuration). It aborts the run immediately and
// surfaces on the account's last_import_attempt_error.
type FatalProviderError struct {
	Code string
	Err  error
}

func (e *FatalProviderError) Error() string {
	return fmt.Sprintf("importer: fatal provider error %s: %v", e.Code, e.Err)
}

func (e *FatalProviderError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether an error must bypass retry
func IsFatal(err error) bool {
	var fatal *FatalProviderError
	return errors.As(err, &fatal)
}

// IsNotReady reports whether an error is the provider's not-ready signal
func IsNotReady(err error) bool {
	var notReady *ReportNotReadyError
	return errors.As(err, &notReady)
}
