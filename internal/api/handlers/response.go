package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/NeroQue/cartridge-import-backend/internal/logger"
)

// Common response structures for consistency across all handlers
type ErrorResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// SendErrorResponse sends a consistent error response with logging
func SendErrorResponse(w http.ResponseWriter, log *logger.Logger, message string, statusCode int, logMessage string, err error) {
	if err != nil {
		log.Warn(logMessage, "status", statusCode, "error", err)
	} else {
		log.Warn(logMessage, "status", statusCode)
	}

	writeJSON(w, log, statusCode, ErrorResponse{
		Message: message,
		Success: false,
	})
}

// SendSuccessResponse sends a consistent 200 response
func SendSuccessResponse(w http.ResponseWriter, log *logger.Logger, message string, data interface{}) {
	writeJSON(w, log, http.StatusOK, SuccessResponse{
		Message: message,
		Success: true,
		Data:    data,
	})
}

// SendAcceptedResponse is for work that continues in the background
func SendAcceptedResponse(w http.ResponseWriter, log *logger.Logger, message string, data interface{}) {
	writeJSON(w, log, http.StatusAccepted, SuccessResponse{
		Message: message,
		Success: true,
		Data:    data,
	})
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

// ValidateJSONBody validates and decodes JSON request body
func ValidateJSONBody(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return &ValidationError{Message: "Request body is required"}
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // Strict validation

	if err := decoder.Decode(dest); err != nil {
		return &ValidationError{Message: "Invalid JSON format: " + err.Error()}
	}

	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
