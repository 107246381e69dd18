package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/files"
)

// Error codes that do not come from the service.
const (
	codeUnauthorized = "UNAUTHORIZED"
	codeRateLimited  = "RATE_LIMITED"
	codeInternal     = "INTERNAL"
)

// errorBody is the JSON shape of every error response:
// {"error": {"code": "...", "message": "..."}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("HTTP: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusOf maps a service error code to an HTTP status.
func statusOf(code files.ErrorCode) int {
	switch code {
	case files.CodeValidation:
		return http.StatusBadRequest
	case files.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case files.CodeFilenameConflict, files.CodeContentConflict:
		return http.StatusConflict
	case files.CodeNotFound:
		return http.StatusNotFound
	case files.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders an error returned by the service. Transient
// failures hide their cause from the client and are logged instead.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := files.CodeOf(err)
	if code == files.CodeTransient {
		logger.Error("HTTP %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error, retry later")
		return
	}

	message := err.Error()
	var fe *files.Error
	if errors.As(err, &fe) {
		message = fe.Message
	}
	writeError(w, statusOf(code), code.String(), message)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, files.CodeValidation.String(), message)
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
