package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Field: field})
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError writes err with its mapped status. Internal errors are
// logged and not echoed to the caller.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	var field string
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		field = verr.Field
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Errorf("Request failed: %v", err)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeError(w, status, code, message, field)
}

// validate is a reusable validator instance keyed by json field names
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts the first validator failure to a ValidationError
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return models.NewValidationError(fe.Field(), "failed "+fe.Tag()+" validation")
	}
	return models.NewValidationError("body", err.Error())
}

// decodeBody reads a JSON request body into dst and validates it
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}
