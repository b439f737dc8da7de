// Package httpx provides JSON response utilities shared by all HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrorBody is the machine-readable error envelope returned by the API.
type ErrorBody struct {
	Code    string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an error envelope with a machine-readable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Code: code, Message: message})
}

// FieldErrors sends a validation error envelope carrying per-field messages.
func FieldErrors(w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	JSON(w, status, ErrorBody{Code: code, Message: message, Fields: fields})
}

// Internal sends a generic 500 with internal detail suppressed.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "internal_server_error", "An error occurred while processing your request.")
}

// maxBodyBytes bounds request bodies; auth payloads are tiny.
const maxBodyBytes = 1 << 20

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		return err
	}
	// Reject trailing garbage after the first JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("httpx: unexpected data after JSON body")
	}
	return nil
}
