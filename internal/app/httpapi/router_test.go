package httpapi

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
)

func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Route", name)
		if id, ok := mux.Vars(r)["id"]; ok {
			w.Header().Set("X-ID", id)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func errorCode(rec *httptest.ResponseRecorder) string {
	return gjson.Get(rec.Body.String(), "error.code").String()
}

func TestLiteralSegmentBeatsParameterRegardlessOfOrder(t *testing.T) {
	t.Parallel()

	// Parameter routes first on purpose.
	table := newRouteTable()
	table.handle(http.MethodGet, "/widgets/{id}", named("get"))
	table.handle(http.MethodDelete, "/widgets/{id}", named("delete"))
	table.handle(http.MethodGet, "/widgets/count", named("count"))
	router := table.router()

	rec := serve(router, http.MethodGet, "/widgets/count")
	if got := rec.Header().Get("X-Route"); got != "count" {
		t.Errorf("GET /widgets/count routed to %q, want count", got)
	}

	rec = serve(router, http.MethodGet, "/widgets/abc")
	if got := rec.Header().Get("X-Route"); got != "get" {
		t.Errorf("GET /widgets/abc routed to %q, want get", got)
	}
	if got := rec.Header().Get("X-ID"); got != "abc" {
		t.Errorf("id = %q, want abc", got)
	}

	// The literal route owns its path for every method.
	rec = serve(router, http.MethodDelete, "/widgets/count")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /widgets/count status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != "GET" {
		t.Errorf("Allow = %q, want GET", got)
	}
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	t.Parallel()

	table := newRouteTable()
	table.handle(http.MethodPost, "/widgets", named("create"))
	table.handle(http.MethodGet, "/widgets", named("list"))
	router := table.router()

	rec := serve(router, http.MethodPut, "/widgets")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q, want %q", got, "GET, POST")
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := errorCode(rec); got != "method_not_allowed" {
		t.Errorf("error code = %q, want method_not_allowed", got)
	}
}

func TestUnknownPathIsJSONNotFound(t *testing.T) {
	t.Parallel()

	table := newRouteTable()
	table.handle(http.MethodGet, "/widgets", named("list"))
	router := table.router()

	for _, path := range []string{"/", "/gadgets", "/widgets/a/b"} {
		rec := serve(router, http.MethodGet, path)
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
		if got := errorCode(rec); got != "not_found" {
			t.Errorf("GET %s error code = %q, want not_found", path, got)
		}
	}
}

func TestPatternOrdering(t *testing.T) {
	t.Parallel()

	patterns := []string{
		"/widgets/{id}",
		"/{kind}/count",
		"/widgets",
		"/widgets/count",
		"/healthz",
	}
	sort.Slice(patterns, func(i, j int) bool { return moreSpecific(patterns[i], patterns[j]) })

	want := []string{
		"/healthz",
		"/widgets/count",
		"/widgets/{id}",
		"/widgets",
		"/{kind}/count",
	}
	if !reflect.DeepEqual(patterns, want) {
		t.Errorf("order = %v, want %v", patterns, want)
	}
}
