package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
	"github.com/R3E-Network/crud_service/internal/httputil"
)

// routeTable maps (method, path template) pairs to handlers. Each template is
// registered once with gorilla/mux and dispatches on method itself, so a path
// that matches with the wrong method is answered with 405 instead of falling
// through to a less specific template.
type routeTable struct {
	routes map[string]map[string]http.HandlerFunc
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[string]map[string]http.HandlerFunc)}
}

func (t *routeTable) handle(method, pattern string, fn http.HandlerFunc) {
	methods, ok := t.routes[pattern]
	if !ok {
		methods = make(map[string]http.HandlerFunc)
		t.routes[pattern] = methods
	}
	methods[method] = fn
}

// patterns returns the templates most specific first.
func (t *routeTable) patterns() []string {
	out := make([]string, 0, len(t.routes))
	for pattern := range t.routes {
		out = append(out, pattern)
	}
	sort.Slice(out, func(i, j int) bool {
		return moreSpecific(out[i], out[j])
	})
	return out
}

// router builds the gorilla/mux router. Registration order of the table does
// not matter: templates are added most specific first and mux tries them in
// that order.
func (t *routeTable) router() *mux.Router {
	r := mux.NewRouter()
	for _, pattern := range t.patterns() {
		r.Handle(pattern, dispatch(pattern, t.routes[pattern]))
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, svcerrors.RouteNotFound(req.URL.Path))
	})
	return r
}

func dispatch(pattern string, methods map[string]http.HandlerFunc) http.Handler {
	allowed := make([]string, 0, len(methods))
	for method := range methods {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := methods[r.Method]; ok {
			fn(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		httputil.WriteError(w, svcerrors.MethodNotAllowed(r.Method, pattern))
	})
}

// moreSpecific orders templates so that, at the first position where they
// differ in kind, a literal segment sorts before a {parameter}.
func moreSpecific(a, b string) bool {
	as := strings.Split(strings.Trim(a, "/"), "/")
	bs := strings.Split(strings.Trim(b, "/"), "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		aParam, bParam := isParam(as[i]), isParam(bs[i])
		switch {
		case !aParam && bParam:
			return true
		case aParam && !bParam:
			return false
		case !aParam && as[i] != bs[i]:
			return as[i] < bs[i]
		}
	}
	if len(as) != len(bs) {
		return len(as) > len(bs)
	}
	return a < b
}

func isParam(segment string) bool {
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}
