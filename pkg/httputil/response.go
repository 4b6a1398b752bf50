package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json and encodes the value as JSON.
// Any encoding errors are silently ignored (best-effort).
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a standardized JSON error response.
// The response format is: {"error": "message"}
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]any{"error": msg})
}

// WriteOk writes a Result Ok envelope: {"ok": true, "value": ...}.
func WriteOk(w http.ResponseWriter, value any) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "value": value})
}

// WriteErr writes a Result Err envelope with the status mirrored in the body.
func WriteErr(w http.ResponseWriter, status int, reason, code string, meta map[string]any) {
	body := map[string]any{
		"ok":         false,
		"reason":     reason,
		"code":       code,
		"statusCode": status,
	}
	if meta != nil {
		body["meta"] = meta
	}
	WriteJSON(w, status, body)
}
