package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
)

func TestWriteErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, svcerrors.Validation(map[string]string{"name": "must be provided"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body := rec.Body.String()
	if got := gjson.Get(body, "error.code").String(); got != "validation_failed" {
		t.Errorf("error.code = %q, want validation_failed", got)
	}
	if got := gjson.Get(body, "error.fields.name").String(); got != "must be provided" {
		t.Errorf("error.fields.name = %q, want %q", got, "must be provided")
	}
	if gjson.Get(body, "error.message").String() == "" {
		t.Error("error.message is empty")
	}
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if got := gjson.Get(body, "error.code").String(); got != "internal" {
		t.Errorf("error.code = %q, want internal", got)
	}
	if strings.Contains(body, "password") {
		t.Errorf("body leaks the cause: %s", body)
	}
	if gjson.Get(body, "error.fields").Exists() {
		t.Errorf("unexpected fields in %s", body)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5123"
	if got := ClientIP(r); got != "10.0.0.7" {
		t.Errorf("ClientIP = %q, want 10.0.0.7", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP with X-Forwarded-For = %q, want 203.0.113.9", got)
	}
}
