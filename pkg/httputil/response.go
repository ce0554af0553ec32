package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// Any encoding errors are silently ignored (best-effort).
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a failure envelope: {"success": false, "reason": msg, "code": errCode}.
func WriteError(w http.ResponseWriter, status int, errCode, msg string) {
	resp := map[string]any{"success": false, "reason": msg}
	if errCode != "" {
		resp["code"] = errCode
	}
	WriteJSON(w, status, resp)
}

// WriteResult writes {"success": success, "reason": reason, key: v}. reason
// is omitted when empty and key when v is nil.
func WriteResult(w http.ResponseWriter, status int, success bool, reason, key string, v any) {
	resp := map[string]any{"success": success}
	if reason != "" {
		resp["reason"] = reason
	}
	if key != "" && v != nil {
		resp[key] = v
	}
	WriteJSON(w, status, resp)
}

// WriteSuccess writes a success envelope carrying v under key.
func WriteSuccess(w http.ResponseWriter, key string, v any) {
	WriteResult(w, http.StatusOK, true, "", key, v)
}
