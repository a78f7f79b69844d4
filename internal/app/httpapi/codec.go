package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/R3E-Network/crud_service/internal/app/storage"
	svcerrors "github.com/R3E-Network/crud_service/internal/errors"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON object from the request body into dst.
// Unknown fields and values of the wrong JSON type are rejected; nothing is
// coerced.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return svcerrors.UnsupportedMediaType(ct)
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return svcerrors.MalformedBody("body must only contain a single JSON value")
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return svcerrors.MalformedBody(fmt.Sprintf("body contains badly-formed JSON (at character %d)", syntaxErr.Offset))
	case errors.Is(err, io.ErrUnexpectedEOF):
		return svcerrors.MalformedBody("body contains badly-formed JSON")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return svcerrors.MalformedBody(fmt.Sprintf("body contains incorrect JSON type for field %q", typeErr.Field))
		}
		return svcerrors.MalformedBody(fmt.Sprintf("body contains incorrect JSON type (at character %d)", typeErr.Offset))
	case errors.Is(err, io.EOF):
		return svcerrors.MalformedBody("body must not be empty")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return svcerrors.MalformedBody(fmt.Sprintf("body contains unknown key %s", field))
	case errors.As(err, &maxBytesErr):
		return svcerrors.MalformedBody(fmt.Sprintf("body must not be larger than %d bytes", maxBytesErr.Limit))
	default:
		return svcerrors.MalformedBody(err.Error())
	}
}

// queryInt returns the named non-negative integer parameter, or def when it
// is absent.
func queryInt(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, svcerrors.BadParameter(name, "must be an integer")
	}
	if n < 0 {
		return 0, svcerrors.BadParameter(name, "must not be negative")
	}
	return n, nil
}

// pageFromQuery reads limit and offset. Limits above storage.MaxLimit are
// clamped by the store.
func pageFromQuery(r *http.Request) (storage.Page, error) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", storage.DefaultLimit)
	if err != nil {
		return storage.Page{}, err
	}
	if limit == 0 {
		return storage.Page{}, svcerrors.BadParameter("limit", "must be greater than zero")
	}
	offset, err := queryInt(q, "offset", 0)
	if err != nil {
		return storage.Page{}, err
	}
	return storage.Page{Limit: limit, Offset: offset}.Normalize(), nil
}
