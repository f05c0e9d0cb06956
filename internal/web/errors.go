package web

// errors.go maps internal errors onto JSON API responses. Technical detail
// is logged server-side with the request ID; clients get a stable error code
// and a readable message.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/regdata-io/cmsload/internal/catalog"
	"github.com/regdata-io/cmsload/internal/ingest"
	"github.com/regdata-io/cmsload/internal/logging"
	"github.com/regdata-io/cmsload/internal/version"
)

// ErrorResponse is the JSON body for failed API calls.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// mapError translates known failures to an HTTP status and a stable code.
// Unrecognized errors become opaque 500s so internals do not leak.
func mapError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, catalog.ErrSourceNotFound):
		return http.StatusNotFound, "source_not_found", err.Error()
	case errors.Is(err, version.ErrVersionExists):
		return http.StatusConflict, "version_exists", err.Error()
	case errors.Is(err, version.ErrDuplicateFile):
		return http.StatusConflict, "duplicate_file", err.Error()
	case errors.Is(err, version.ErrDuplicatePart):
		return http.StatusConflict, "duplicate_part", err.Error()
	case errors.Is(err, ingest.ErrHeaderNotFound):
		return http.StatusUnprocessableEntity, "header_not_found", err.Error()
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format", err.Error()
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, errUploadNotFound):
		return http.StatusNotFound, "upload_not_found", err.Error()
	case errors.Is(err, errVersionNotFound):
		return http.StatusNotFound, "version_not_found", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// respondError logs the technical error and writes the mapped JSON response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)

	logger := logging.FromContext(r.Context())
	logger.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondJSON writes v as the JSON response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
