package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"
)

// Kind classifies a persistence failure. Callers decide policy from the kind;
// this package never decides how a failure is presented.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindTimeout       Kind = "timeout"
	KindPoolExhausted Kind = "pool_exhausted"
	KindConstraint    Kind = "constraint"
	KindFatal         Kind = "fatal"
	// KindIndeterminate is a COMMIT whose outcome is unknown: the connection
	// failed after the statement was sent, so the write may have landed.
	KindIndeterminate Kind = "indeterminate"
)

// Error is a classified persistence failure.
type Error struct {
	Op         string
	Kind       Kind
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether repeating the operation unchanged may succeed.
func (e *Error) Retriable() bool {
	return e.Kind == KindTransient || e.Kind == KindPoolExhausted
}

// Classify wraps a driver error with its Kind. Already classified errors and
// sql.ErrNoRows pass through untouched.
func Classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}

	out := &Error{Op: op, Kind: KindFatal, Err: err}

	var pqErr *pq.Error
	switch {
	case ctx != nil && ctx.Err() != nil:
		out.Kind = KindTimeout
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		out.Kind = KindTimeout
	case errors.As(err, &pqErr):
		out.Kind = kindForSQLState(pqErr.Code)
		if out.Kind == KindConstraint {
			out.Constraint = pqErr.Constraint
		}
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		out.Kind = KindTransient
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			out.Kind = KindTransient
		}
	}
	return out
}

// ClassifyCommit classifies a failed COMMIT. Only failures where the server
// reports a rollback (serialization failure, deadlock) remain retriable;
// other transient failures leave the outcome unknown.
func ClassifyCommit(ctx context.Context, err error) error {
	classified := Classify(ctx, "commit", err)
	var dbErr *Error
	if !errors.As(classified, &dbErr) || dbErr.Kind != KindTransient {
		return classified
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == "40001" || pqErr.Code == "40P01") {
		return classified
	}
	dbErr.Kind = KindIndeterminate
	return classified
}

func kindForSQLState(code pq.ErrorCode) Kind {
	switch code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return KindTransient
	case "57014": // query_canceled
		return KindTimeout
	case "57P01", "57P02", "57P03": // admin_shutdown, crash_shutdown, cannot_connect_now
		return KindTransient
	}
	switch code.Class() {
	case "08", "53": // connection_exception, insufficient_resources
		return KindTransient
	case "23": // integrity_constraint_violation
		return KindConstraint
	}
	return KindFatal
}

// KindOf returns the Kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// IsRetriable reports whether err is a classified retriable failure.
func IsRetriable(err error) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.Retriable()
}

// ConstraintOf returns the violated constraint name, if any.
func ConstraintOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) && classified.Kind == KindConstraint {
		return classified.Constraint
	}
	return ""
}

// ConstraintViolation builds a constraint error without a driver. In-memory
// stores use it so callers see the same classification as with PostgreSQL.
func ConstraintViolation(op, constraint string) error {
	return &Error{
		Op:         op,
		Kind:       KindConstraint,
		Constraint: constraint,
		Err:        fmt.Errorf("violates constraint %q", constraint),
	}
}
