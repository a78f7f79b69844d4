// Package httputil writes JSON responses and error bodies shared by the
// handlers and the middleware chain.
package httputil

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
)

type errorBody struct {
	Error *svcerrors.ServiceError `json:"error"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as {"error": {...}} using its status. Errors that are
// not ServiceErrors are reported as internal.
func WriteError(w http.ResponseWriter, err error) {
	svcErr := svcerrors.From(err)
	WriteJSON(w, svcErr.HTTPStatus, errorBody{Error: svcErr})
}

// ClientIP returns the caller address used to key per-client limits.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
