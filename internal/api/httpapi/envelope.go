package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxBodyBytes = 1 << 20
)

// envelope is the shape of every API response.
type envelope struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data"`
	StatusCode int    `json:"status_code"`
	Code       string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, envelope{
		Status:     statusSuccess,
		Message:    message,
		Data:       data,
		StatusCode: code,
	})
}

// fail renders err. Internal faults are logged with the request id and
// reported without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	code := e.Kind.HTTPStatus()
	msg := e.Message

	switch e.Kind {
	case apperr.KindInternal, apperr.KindDataCorruption:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"code", e.Code,
			"error", err.Error(),
		)
		if e.Kind == apperr.KindInternal {
			msg = "internal error"
		}
	case apperr.KindTimeout:
		slog.Warn("request timed out", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	}

	writeJSON(w, code, envelope{
		Status:     statusError,
		Message:    msg,
		StatusCode: code,
		Code:       e.Code,
	})
}

type validator interface {
	Validate() error
}

// decode reads a JSON body into dst. Unknown fields, trailing data and
// malformed JSON are validation errors.
func decode(w http.ResponseWriter, r *http.Request, dst validator) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return apperr.Validation("content type must be application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return dst.Validate()
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Validation("malformed JSON")
	case errors.As(err, &typeErr):
		return apperr.Validation("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &sizeErr):
		return apperr.Validation("request body exceeds %d bytes", sizeErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return apperr.Validation("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	}
	return apperr.Validation("invalid request body")
}

// list keeps empty results as [] in the response.
func list[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
