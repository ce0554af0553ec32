package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "simple map",
			code:       http.StatusOK,
			data:       map[string]any{"key": "value"},
			wantStatus: http.StatusOK,
			wantBody:   `{"key":"value"}`,
		},
		{
			name:       "array",
			code:       http.StatusCreated,
			data:       []string{"a", "b"},
			wantStatus: http.StatusCreated,
			wantBody:   `["a","b"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.code, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("WriteJSON() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("WriteJSON() Content-Type = %v, want application/json", ct)
			}

			var got, want any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.wantBody), &want)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("WriteJSON() body = %v, want %v", string(gotJSON), string(wantJSON))
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusServiceUnavailable, "NO_REPLICAS", "no provider accepted the pin")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != false || resp["reason"] != "no provider accepted the pin" || resp["code"] != "NO_REPLICAS" {
		t.Errorf("unexpected envelope: %v", resp)
	}
}

func TestWriteResult(t *testing.T) {
	tests := []struct {
		name       string
		success    bool
		reason     string
		key        string
		value      any
		wantFields []string
		noFields   []string
	}{
		{"success with data", true, "", "outcome", map[string]any{"hash": "x"}, []string{"success", "outcome"}, []string{"reason"}},
		{"partial with reason", false, "pinned to 1 of 2 target providers", "outcome", map[string]any{}, []string{"success", "reason", "outcome"}, nil},
		{"nil value", true, "", "outcome", nil, []string{"success"}, []string{"outcome"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteResult(w, http.StatusOK, tt.success, tt.reason, tt.key, tt.value)

			var resp map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp["success"] != tt.success {
				t.Errorf("success = %v, want %v", resp["success"], tt.success)
			}
			for _, f := range tt.wantFields {
				if _, ok := resp[f]; !ok {
					t.Errorf("missing field %q in %v", f, resp)
				}
			}
			for _, f := range tt.noFields {
				if _, ok := resp[f]; ok {
					t.Errorf("unexpected field %q in %v", f, resp)
				}
			}
		})
	}
}
