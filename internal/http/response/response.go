package response

import (
	"encoding/json"
	"net/http"
	"time"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Error   apiError `json:"error"`
	Meta    meta     `json:"meta"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON writes v verbatim. Auth boundary payloads have fixed shapes, so no
// generic envelope is wrapped around success responses.
func JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a taxonomy error with request metadata. Messages stay
// generic; diagnostic detail belongs in logs.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Success: false,
		Error:   apiError{Code: code, Message: message},
		Meta:    buildMeta(r),
	})
}

func buildMeta(r *http.Request) meta {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
