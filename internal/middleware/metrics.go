// Package middleware provides the HTTP middleware chain of the service.
package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/crud_service/internal/app/metrics"
)

// RouteMatcher resolves the route a request will be dispatched to.
// *mux.Router implements it.
type RouteMatcher interface {
	Match(req *http.Request, match *mux.RouteMatch) bool
}

// MetricsMiddleware records HTTP metrics for each request, labelled with the
// route template rather than the raw path.
func MetricsMiddleware(routes RouteMatcher) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			metrics.InFlightInc()
			defer metrics.InFlightDec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			metrics.RecordHTTPRequest(r.Method, routeTemplate(routes, r), wrapped.statusCode, time.Since(start))
		})
	}
}

func routeTemplate(routes RouteMatcher, r *http.Request) string {
	if routes == nil {
		return ""
	}
	var match mux.RouteMatch
	if !routes.Match(r, &match) || match.Route == nil {
		return ""
	}
	tpl, err := match.Route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
