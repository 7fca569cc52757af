package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/arencloud/bucketgw/internal/s3"
)

// Kind classifies every failure that leaves the gateway.
type Kind int

const (
	// KindInfrastructure is the zero value so unclassified errors surface as
	// store failures.
	KindInfrastructure Kind = iota
	KindInvalidRequest
	KindOwnership
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindOwnership:
		return "Ownership"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	default:
		return "Infrastructure"
	}
}

// Error is the only error type returned by Service methods. Msg is safe to
// show to callers; Err keeps the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of err, KindInfrastructure for foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInfrastructure
}

// Message returns the caller-facing text of err.
func Message(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Msg
	}
	return "internal error"
}

func bucketNotFound(name string, cause error) *Error {
	return newError(KindNotFound, cause, "Bucket with name %s not found", name)
}

// storeError classifies a raw store failure for an operation on bucket.
func storeError(err error, bucket string) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	switch {
	case errors.Is(err, s3.ErrNoSuchBucket):
		return bucketNotFound(bucket, err)
	case errors.Is(err, s3.ErrBucketExists):
		return newError(KindConflict, err, "Bucket with name %s already exists", bucket)
	case errors.Is(err, s3.ErrInvalidBucketName):
		return newError(KindInvalidRequest, err, "Invalid bucket name %s", bucket)
	case errors.Is(err, s3.ErrBucketNotEmpty):
		return newError(KindConflict, err, notEmptyMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindInfrastructure, err, "Object store did not answer in time")
	}
	return newError(KindInfrastructure, err, "Object store request failed")
}
