package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
)

func TestDecodeJSONStrict(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid json", `{"hash": "bafy"}`, false},
		{"unknown field", `{"hash": "bafy", "extra": 1}`, true},
		{"invalid json", `{invalid}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			var body struct {
				Hash string `json:"hash"`
			}
			err := DecodeJSONStrict(req, &body)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSONStrict() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !perrors.IsValidation(err) {
				t.Errorf("expected a validation error, got %T", err)
			}
		})
	}
}

func TestReadBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxBytes int64
		want     string
		wantErr  bool
	}{
		{"normal read", "Hello World", 1024, "Hello World", false},
		{"exact limit", "Hello", 5, "Hello", false},
		{"too large", "Hello World", 5, "", true},
		{"no limit", "Hello World", 0, "Hello World", false},
		{"empty body", "", 1024, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			got, err := ReadBody(req, tt.maxBytes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("ReadBody() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?name=file.txt&force=true&bad=maybe", nil)
	if got := QueryParam(req, "name", "x"); got != "file.txt" {
		t.Errorf("QueryParam() = %q", got)
	}
	if got := QueryParam(req, "missing", "x"); got != "x" {
		t.Errorf("QueryParam() default = %q", got)
	}
	if !QueryParamBool(req, "force", false) {
		t.Error("QueryParamBool(force) should be true")
	}
	if QueryParamBool(req, "bad", false) {
		t.Error("QueryParamBool(bad) should fall back to default")
	}
}
