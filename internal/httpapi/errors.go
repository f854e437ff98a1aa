package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrInvalidToken is returned by JWTVerifier.Verify for any malformed,
// unsigned, or expired token.
var ErrInvalidToken = errors.New("invalid_token")

// errorEnvelope is the stable JSON error shape returned by every failing
// API call.
type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: message, Code: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
