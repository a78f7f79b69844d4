package middleware

import (
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/R3E-Network/crud_service/internal/app/metrics"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/internal/httputil"
)

// Health and metrics paths bypass admission control so operators can always observe a
// saturated server.
var opsPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

func isOpsPath(r *http.Request) bool {
	_, ok := opsPaths[r.URL.Path]
	return ok
}

// Backpressure bounds the number of requests handled at once. Requests beyond
// the bound are refused immediately with 503 instead of queueing.
type Backpressure struct {
	sem *semaphore.Weighted
}

// NewBackpressure allows maxInFlight concurrent requests. Zero or less
// disables the bound.
func NewBackpressure(maxInFlight int64) *Backpressure {
	if maxInFlight <= 0 {
		return &Backpressure{}
	}
	return &Backpressure{sem: semaphore.NewWeighted(maxInFlight)}
}

// Handler returns the admission control middleware handler
func (b *Backpressure) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.sem == nil || isOpsPath(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !b.sem.TryAcquire(1) {
			metrics.RecordRejection(metrics.ReasonOverloaded)
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, svcerrors.Overloaded())
			return
		}
		defer b.sem.Release(1)

		next.ServeHTTP(w, r)
	})
}
