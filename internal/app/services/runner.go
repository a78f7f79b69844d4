// Package services holds what the resource services share: the retrying
// storage runner and the translation of persistence failures into client
// errors.
package services

import (
	"context"
	"errors"

	"github.com/R3E-Network/crud_service/internal/app/storage"
	"github.com/R3E-Network/crud_service/internal/database"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/internal/retry"
	"github.com/R3E-Network/crud_service/internal/validator"
	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Options carries the dependencies every resource service takes.
type Options struct {
	Retry retry.Policy
	// OnRetry observes each storage attempt that is about to be repeated.
	OnRetry func(op string, attempt int, err error)
	Log     *logger.Logger
}

// Runner executes storage calls under the retry policy.
type Runner struct {
	policy  retry.Policy
	onRetry func(op string, attempt int, err error)
	log     *logger.Logger
}

// NewRunner builds a runner logging under component.
func NewRunner(opts Options, component string) *Runner {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault(component)
	} else {
		log = log.Named(component)
	}
	return &Runner{policy: opts.Retry, onRetry: opts.OnRetry, log: log}
}

// Log returns the runner's logger.
func (r *Runner) Log() *logger.Logger {
	return r.log
}

// Do runs fn, repeating it while it fails with a retriable persistence error.
func (r *Runner) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.policy, database.IsRetriable, func(attempt int, err error) {
		r.log.WithContext(ctx).
			WithError(err).
			WithField("op", op).
			WithField("attempt", attempt).
			Warn("retrying storage operation")
		if r.onRetry != nil {
			r.onRetry(op, attempt, err)
		}
	}, fn)
}

// Translate maps a store failure for resource kind/id onto a client error.
// Constraint violations a resource understands must be handled before calling
// it; any left over are internal failures.
func Translate(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *svcerrors.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if errors.Is(err, storage.ErrNotFound) {
		return svcerrors.NotFound(kind, id)
	}

	switch database.KindOf(err) {
	case database.KindTransient, database.KindPoolExhausted, database.KindIndeterminate:
		return svcerrors.Unavailable(err)
	case database.KindTimeout:
		return svcerrors.Timeout(err)
	case "":
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return svcerrors.Timeout(err)
		}
	}
	return svcerrors.Internal(err)
}

// Validate runs check against a fresh validator and reports its failures.
func Validate(check func(*validator.Validator)) error {
	v := validator.New()
	check(v)
	if !v.Valid() {
		return svcerrors.Validation(v.Errors)
	}
	return nil
}
