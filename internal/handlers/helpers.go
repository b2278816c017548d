package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/finwire/finwire/internal/models"
)

// maxRequestBody bounds tool payloads (content limits are enforced again
// at the service layer).
const maxRequestBody = 10 << 20

// successEnvelope is the uniform tool success response.
type successEnvelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// errorEnvelope is the uniform tool error response.
type errorEnvelope struct {
	Status   string         `json:"status"`
	Code     models.ErrorCode `json:"error_code"`
	Message  string         `json:"message"`
	Recovery string         `json:"recovery_strategy,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes the success envelope.
func WriteSuccess(w http.ResponseWriter, data any, message string) error {
	return WriteJSON(w, http.StatusOK, successEnvelope{
		Status:  "success",
		Data:    data,
		Message: message,
	})
}

// WriteServiceError renders any error as the error envelope with the HTTP
// status implied by its code.
func WriteServiceError(w http.ResponseWriter, err error) error {
	se := models.AsServiceError(err)
	return WriteJSON(w, httpStatusFor(se.Code), errorEnvelope{
		Status:   "error",
		Code:     se.Code,
		Message:  se.Message,
		Recovery: se.Recovery,
		Details:  se.Details,
	})
}

func httpStatusFor(code models.ErrorCode) int {
	switch code {
	case models.ErrInvalidInput, models.ErrWordLimit, models.ErrSchemaViolation:
		return http.StatusBadRequest
	case models.ErrAuthMissing, models.ErrAuthInvalidToken:
		return http.StatusUnauthorized
	case models.ErrAccessDenied, models.ErrAdminRequired:
		return http.StatusForbidden
	case models.ErrNotFound, models.ErrSourceNotFound:
		return http.StatusNotFound
	case models.ErrDuplicate:
		return http.StatusConflict
	case models.ErrLLMRateLimited:
		return http.StatusTooManyRequests
	case models.ErrLLMTransport, models.ErrStoreUnavailable, models.ErrUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RequireMethod writes 405 and returns false when the method differs.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
