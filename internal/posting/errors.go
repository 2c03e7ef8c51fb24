package posting

import (
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// ErrorKind classifies posting failures for API consumers.
type ErrorKind string

const (
	KindDocumentNotFound   ErrorKind = "document_not_found"
	KindAlreadyPosted      ErrorKind = "already_posted"
	KindMissingGLAccount   ErrorKind = "missing_gl_account"
	KindInvalidDimension   ErrorKind = "invalid_dimension"
	KindUnbalancedEntry    ErrorKind = "unbalanced_entry"
	KindAllocationMismatch ErrorKind = "allocation_mismatch"
	KindPostingFailed      ErrorKind = "posting_failed"
)

// ErrDocumentNotFound indicates the referenced source document is missing.
var ErrDocumentNotFound = errors.New("posting: document not found")

// AlreadyPostedError is returned when the idempotency guard trips. It
// carries the journal ids created by the original posting so callers can
// surface them instead of retrying.
type AlreadyPostedError struct {
	EntryID int64
	LineIDs []int64
}

func (e *AlreadyPostedError) Error() string {
	return fmt.Sprintf("posting: document already posted as journal entry %d", e.EntryID)
}

// MissingGLAccountError indicates a required account role resolved neither
// from the document nor from the configured defaults.
type MissingGLAccountError struct {
	Role ledger.AccountRole
}

func (e *MissingGLAccountError) Error() string {
	return fmt.Sprintf("posting: no account configured for role %s", e.Role)
}

// InvalidDimensionError indicates a referenced dimension value is missing,
// inactive, or a required dimension has no assignment.
type InvalidDimensionError struct {
	DimensionValueID int64
	Reason           string
}

func (e *InvalidDimensionError) Error() string {
	if e.DimensionValueID != 0 {
		return fmt.Sprintf("posting: invalid dimension value %d: %s", e.DimensionValueID, e.Reason)
	}
	return "posting: " + e.Reason
}

// PostingFailedError wraps an unexpected lower-level failure after which the
// transaction was rolled back.
type PostingFailedError struct {
	Err error
}

func (e *PostingFailedError) Error() string {
	return fmt.Sprintf("posting: posting failed: %v", e.Err)
}

func (e *PostingFailedError) Unwrap() error { return e.Err }

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	var (
		already *AlreadyPostedError
		missing *MissingGLAccountError
		invalid *InvalidDimensionError
	)
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return KindDocumentNotFound
	case errors.As(err, &already):
		return KindAlreadyPosted
	case errors.As(err, &missing):
		return KindMissingGLAccount
	case errors.As(err, &invalid):
		return KindInvalidDimension
	case errors.Is(err, ledger.ErrUnbalanced):
		return KindUnbalancedEntry
	case errors.Is(err, ledger.ErrAllocationMismatch):
		return KindAllocationMismatch
	default:
		return KindPostingFailed
	}
}
