package domain

import (
	"errors"
)

// Error taxonomy for zone downloads.
var (
	// ErrAuthentication means no bearer token could be obtained: the account
	// API rejected the credentials or was unreachable.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorizationDenied means the account is not entitled to the zone,
	// or the zone does not exist.
	ErrAuthorizationDenied = errors.New("not authorized to download zone file of tld or tld does not exist")

	// ErrNetwork covers transport failures, timeouts and unexpected statuses.
	ErrNetwork = errors.New("network error")

	// ErrProtocol means a response could not be interpreted.
	ErrProtocol = errors.New("protocol error")

	// ErrIO means the zone file could not be persisted locally.
	ErrIO = errors.New("io error")

	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind classifies an outcome error
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindAuthentication      ErrorKind = "authentication"
	KindAuthorizationDenied ErrorKind = "authorization_denied"
	KindNetwork             ErrorKind = "network"
	KindProtocol            ErrorKind = "protocol"
	KindIO                  ErrorKind = "io"
	KindCanceled            ErrorKind = "canceled"
	KindUnknown             ErrorKind = "unknown"
)

// KindOf returns the ErrorKind of err by matching it against the taxonomy
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrAuthorizationDenied):
		return KindAuthorizationDenied
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case isCanceled(err):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// BatchStage names the precondition step a batch failed in
type BatchStage string

const (
	StageAuthenticate BatchStage = "authenticate"
	StageEnumerate    BatchStage = "enumerate"
)

// BatchError represents a failure of a step every item depends on.
// It is reported once for the batch instead of once per zone.
type BatchError struct {
	Stage BatchStage
	Err   error
}

// Error returns the error message
func (e *BatchError) Error() string {
	if e.Err != nil {
		return string(e.Stage) + ": " + e.Err.Error()
	}
	return string(e.Stage) + ": batch failed"
}

// Unwrap returns the underlying error
func (e *BatchError) Unwrap() error {
	return e.Err
}

// NewBatchError creates a new batch-level error
func NewBatchError(stage BatchStage, err error) *BatchError {
	return &BatchError{Stage: stage, Err: err}
}

// IsBatchError returns true if err aborted the whole batch
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
