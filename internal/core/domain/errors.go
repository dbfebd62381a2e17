package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConversionUnavailable means neither the live rate source nor
	// the static table could produce a rate for the currency pair.
	ErrConversionUnavailable = errors.New("exchange rate unavailable")

	// ErrEnrichmentConflict means the row changed between claim and
	// write-back; the caller requeues it for the next cycle.
	ErrEnrichmentConflict = errors.New("row changed since claim")

	// ErrNoMorePages signals the fetcher walked past the last page.
	ErrNoMorePages = errors.New("no more pages")
)

// UnmappedCodeError is returned by normalization when a source integer
// code has no entry in the mapping tables.
type UnmappedCodeError struct {
	Field string
	Code  int
}

func (e *UnmappedCodeError) Error() string {
	return fmt.Sprintf("unmapped %s code %d", e.Field, e.Code)
}

// ValidationError is returned by normalization when a field is present
// but out of the accepted range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsRecordError reports whether err is a per-record normalization
// failure, i.e. the record is excluded and counted but the run goes on.
func IsRecordError(err error) bool {
	var uc *UnmappedCodeError
	var ve *ValidationError
	return errors.As(err, &uc) || errors.As(err, &ve)
}
