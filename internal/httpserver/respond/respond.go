// Package respond writes the JSON bodies shared by handlers and middlewares.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an ErrorBody carrying msg.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}
