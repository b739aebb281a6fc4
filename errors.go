package dap

import (
	"fmt"

	"github.com/juju/errors"
)

// ErrorKind classifies a driver failure the way spec.md §7 enumerates
// them. Callers that need to react differently to, say, an overrun versus
// an unaligned access should switch on this rather than matching strings.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransportFault
	KindUnalignedAccess
	KindOverrunDetected
	KindResourceNotAvailable
	KindAllocationFailure
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransportFault:
		return "transport-fault"
	case KindUnalignedAccess:
		return "unaligned-access"
	case KindOverrunDetected:
		return "overrun-detected"
	case KindResourceNotAvailable:
		return "resource-not-available"
	case KindAllocationFailure:
		return "allocation-failure"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// driverError wraps a juju/errors error with the ErrorKind the rest of the
// driver needs to branch on, while still satisfying the normal error
// interface and errors.Cause()/Annotate() chaining.
type driverError struct {
	kind ErrorKind
	err  error
}

func (e *driverError) Error() string { return e.err.Error() }
func (e *driverError) Cause() error  { return errors.Cause(e.err) }

func newKindError(kind ErrorKind, err error) error {
	return &driverError{kind: kind, err: err}
}

// KindOf extracts the ErrorKind a driver error was tagged with, or
// KindUnknown for anything that did not originate in this package
// (including a bare transport error that was never classified).
func KindOf(err error) ErrorKind {
	var de *driverError
	for err != nil {
		if cast, ok := err.(*driverError); ok {
			de = cast
			break
		}
		cause := errors.Cause(err)
		if cause == err {
			break
		}
		err = cause
	}
	if de == nil {
		return KindUnknown
	}
	return de.kind
}

// ErrTransportFault wraps a raw transport-layer failure (WAIT/FAULT/
// protocol error) without losing the underlying cause.
func ErrTransportFault(cause error, format string, args ...interface{}) error {
	return newKindError(KindTransportFault, errors.Annotatef(cause, format, args...))
}

// ErrUnalignedAccess reports an access size outside {1,2,4} or an address
// that violates an AP's unaligned_access_bad restriction.
func ErrUnalignedAccess(format string, args ...interface{}) error {
	return newKindError(KindUnalignedAccess, errors.Errorf(format, args...))
}

// ErrOverrunDetected reports the DP_CTRL_STAT sticky-overrun bit.
func ErrOverrunDetected(format string, args ...interface{}) error {
	return newKindError(KindOverrunDetected, errors.Errorf(format, args...))
}

// ErrResourceNotAvailable reports an exhausted, recoverable search (ROM
// table walk, AP scan).
func ErrResourceNotAvailable(format string, args ...interface{}) error {
	return newKindError(KindResourceNotAvailable, errors.NewNotFound(nil, fmt.Sprintf(format, args...)))
}

// ErrAllocationFailure reports a scratch-buffer allocation that could not
// be obtained for a block transfer.
func ErrAllocationFailure(format string, args ...interface{}) error {
	return newKindError(KindAllocationFailure, errors.Errorf(format, args...))
}

// ErrTimeout reports a poll_register budget exceeded.
func ErrTimeout(format string, args ...interface{}) error {
	return newKindError(KindTimeout, errors.NewTimeout(nil, fmt.Sprintf(format, args...)))
}

// IsResourceNotAvailable reports whether err (possibly wrapped) is the
// "search exhausted" condition from a ROM-table walk or AP scan.
func IsResourceNotAvailable(err error) bool {
	return KindOf(err) == KindResourceNotAvailable
}

// IsOverrunDetected reports whether err is the sticky-overrun condition.
func IsOverrunDetected(err error) bool {
	return KindOf(err) == KindOverrunDetected
}
