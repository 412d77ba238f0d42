package pkg

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
)

// APIResponse is the envelope of every API response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// genericErrorMessage is what callers see for failures that are neither
// domain errors nor policy rejections.
const genericErrorMessage = "something went wrong"

// JSON writes a successful response.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Error writes an error response. Domain errors map to their status code;
// unknown and transient errors are logged and answered with a generic
// message.
func Error(w http.ResponseWriter, err error) {
	status := mapErrorToStatus(err)
	message := PublicMessage(err)

	var retry *RetryAfterError
	if errors.As(err, &retry) && retry.Seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry.Seconds))
	}

	ErrorWithMessage(w, status, message)
}

// ErrorWithMessage writes an error response with a custom message.
func ErrorWithMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode error response", http.StatusInternalServerError)
	}
}

// PublicMessage returns the text a caller may see for err. Internal and
// transient failures carry driver or network detail, so they are logged
// and replaced; access denials drop the policy text.
func PublicMessage(err error) string {
	switch status := mapErrorToStatus(err); {
	case status == http.StatusInternalServerError:
		log.Printf("[http] internal error: %v", err)
		return genericErrorMessage
	case status == http.StatusServiceUnavailable:
		log.Printf("[http] unavailable: %v", err)
		return genericErrorMessage
	case errors.Is(err, ErrAccessDenied):
		return ErrAccessDenied.Error()
	}
	return err.Error()
}

// StatusOf exposes the error → status mapping (used by the ws layer to
// report failures with the same codes as HTTP).
func StatusOf(err error) int {
	return mapErrorToStatus(err)
}

// mapErrorToStatus maps domain errors to HTTP status codes. errors.Is walks
// the wrap chain, so wrapped errors match too.
func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrStaleState),
		errors.Is(err, ErrSlotsFull):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
