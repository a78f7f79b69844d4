// Package testutil provides common testing helpers shared by the service and
// handler tests.
package testutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/crud_service/internal/app/services"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/internal/retry"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Ptr returns a pointer to v, for building optional payload fields.
func Ptr[T any](v T) *T { return &v }

// ServiceError fails the test unless err is a *errors.ServiceError and
// returns it.
func ServiceError(t testing.TB, err error) *svcerrors.ServiceError {
	t.Helper()
	var svcErr *svcerrors.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected a service error, got %v", err)
	}
	return svcErr
}

// StatusOf returns the HTTP status a service error maps to.
func StatusOf(t testing.TB, err error) int {
	t.Helper()
	return ServiceError(t, err).HTTPStatus
}

// ServiceOptions returns service options with millisecond backoff and a
// silent logger. When retries is non-nil it counts every retried attempt.
func ServiceOptions(attempts int, retries *atomic.Int32) services.Options {
	return services.Options{
		Retry: retry.Policy{
			MaxAttempts:    attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		OnRetry: func(string, int, error) {
			if retries != nil {
				retries.Add(1)
			}
		},
		Log: logger.NewDiscard(),
	}
}

// FailFirst fails the first n calls to Next with err and succeeds afterwards.
// It is safe for concurrent use.
type FailFirst struct {
	n     int32
	err   error
	calls atomic.Int32
}

// NewFailFirst builds a FailFirst.
func NewFailFirst(n int, err error) *FailFirst {
	return &FailFirst{n: int32(n), err: err}
}

// Next records a call and returns the scripted error, or nil.
func (f *FailFirst) Next() error {
	if f.calls.Add(1) <= f.n {
		return f.err
	}
	return nil
}

// Calls reports how many times Next was called.
func (f *FailFirst) Calls() int {
	return int(f.calls.Load())
}
