package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/crud_service/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(rec *httptest.ResponseRecorder) string {
	return gjson.Get(rec.Body.String(), "error.code").String()
}

func TestBackpressureRejectsBeyondBound(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	h := NewBackpressure(2).Handler(slow)

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
			if rec.Code != http.StatusOK {
				failed.Add(1)
			}
		}()
		<-entered
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status beyond bound = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if got := errorCode(rec); got != "overloaded" {
		t.Errorf("error code = %q, want overloaded", got)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}

	close(release)
	wg.Wait()
	if n := failed.Load(); n != 0 {
		t.Errorf("%d admitted requests failed", n)
	}

	// Capacity is returned once the slow requests finish; release stays closed.
	go func() { <-entered }()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status after capacity returned = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestBackpressureExemptsHealthAndMetrics(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	h := NewBackpressure(1).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/widgets" {
			close(entered)
			<-block
		}
		w.WriteHeader(http.StatusOK)
	}))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/widgets", nil))
	<-entered
	defer close(block)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2, logger.NewDiscard())
	h := rl.Handler(okHandler())

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.1:1001"} {
		if code := call(addr).Code; code != http.StatusOK {
			t.Errorf("call from %s = %d, want %d", addr, code, http.StatusOK)
		}
	}
	limited := call("10.0.0.1:1002")
	if limited.Code != http.StatusTooManyRequests {
		t.Errorf("call beyond burst = %d, want %d", limited.Code, http.StatusTooManyRequests)
	}
	if got := errorCode(limited); got != "rate_limited" {
		t.Errorf("error code = %q, want rate_limited", got)
	}
	if limited.Header().Get("Retry-After") == "" {
		t.Error("limited response has no Retry-After")
	}

	// Other clients keep their own budget.
	if code := call("10.0.0.2:1000").Code; code != http.StatusOK {
		t.Errorf("other client = %d, want %d", code, http.StatusOK)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0, logger.NewDiscard())
	h := rl.Handler(okHandler())
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, 5, logger.NewDiscard())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(10 * time.Minute)
	rl.getLimiter("b")

	if n := rl.Cleanup(5 * time.Minute); n != 1 {
		t.Errorf("Cleanup(5m) = %d, want 1", n)
	}
	if n := rl.Cleanup(-time.Second); n != 0 {
		t.Errorf("Cleanup(-1s) = %d, want 0", n)
	}
}

func TestDeadlineWrites504(t *testing.T) {
	var (
		handlerCtxErr error
		lateWriteErr  error
	)
	answered := make(chan struct{})
	finished := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(finished)
		<-r.Context().Done()
		handlerCtxErr = r.Context().Err()
		// Write only once the middleware has answered the caller.
		<-answered
		_, lateWriteErr = w.Write([]byte("late"))
	})

	rec := httptest.NewRecorder()
	Deadline(30*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	close(answered)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
	if got := errorCode(rec); got != "timeout" {
		t.Errorf("error code = %q, want timeout", got)
	}
	<-finished
	if !errors.Is(handlerCtxErr, context.DeadlineExceeded) {
		t.Errorf("handler context error = %v, want %v", handlerCtxErr, context.DeadlineExceeded)
	}
	if !errors.Is(lateWriteErr, http.ErrHandlerTimeout) {
		t.Errorf("late write error = %v, want %v", lateWriteErr, http.ErrHandlerTimeout)
	}
	if strings.Contains(rec.Body.String(), "late") {
		t.Errorf("body = %q, late write leaked into the response", rec.Body.String())
	}
}

func TestDeadlinePassesFastResponses(t *testing.T) {
	var hasDeadline bool
	h := Deadline(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.Header().Set("Location", "/widgets/1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/widgets", nil))
	if !hasDeadline {
		t.Error("handler context has no deadline")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got := rec.Header().Get("Location"); got != "/widgets/1" {
		t.Errorf("Location = %q, want /widgets/1", got)
	}
	if got := rec.Body.String(); got != `{"id":"1"}` {
		t.Errorf("body = %q, want %q", got, `{"id":"1"}`)
	}
}

func TestDeadlineIgnoresClientDisconnect(t *testing.T) {
	clientCtx, hangUp := context.WithCancel(context.Background())
	var sawCancel bool
	h := Deadline(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hangUp()
		select {
		case <-r.Context().Done():
			sawCancel = true
		case <-time.After(20 * time.Millisecond):
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/widgets/1", nil).WithContext(clientCtx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if sawCancel {
		t.Error("client disconnect cancelled the handler context")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestDeadlineRepanics(t *testing.T) {
	h := Deadline(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	defer func() {
		if v := recover(); v != "boom" {
			t.Errorf("recovered %v, want boom", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://app.example.com"}).Handler(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/widgets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q, want https://app.example.com", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("allow methods = %q, want PATCH listed", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unknown origin allowed: %q", got)
	}
}

func TestTracingPropagatesID(t *testing.T) {
	var seen string
	h := NewTracingMiddleware(logger.NewDiscard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set(TraceHeader, "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "trace-123" {
		t.Errorf("context trace id = %q, want trace-123", seen)
	}
	if got := rec.Header().Get(TraceHeader); got != "trace-123" {
		t.Errorf("response trace header = %q, want trace-123", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	if rec.Header().Get(TraceHeader) == "" {
		t.Error("no trace id generated for a request without one")
	}
}

func TestRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Handle("/widgets/{id}", okHandler())

	if got := routeTemplate(router, httptest.NewRequest(http.MethodGet, "/widgets/abc", nil)); got != "/widgets/{id}" {
		t.Errorf("routeTemplate = %q, want /widgets/{id}", got)
	}
	if got := routeTemplate(router, httptest.NewRequest(http.MethodGet, "/nope", nil)); got != "" {
		t.Errorf("routeTemplate for unknown path = %q, want empty", got)
	}

	rec := httptest.NewRecorder()
	MetricsMiddleware(router)(router).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/abc", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
