package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
)

// DecodeJSONStrict decodes the request body as JSON with strict validation.
// It disallows unknown fields and returns a validation error on bad input.
func DecodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return perrors.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err), nil)
	}
	return nil
}

// ReadBody reads the entire request body. A body longer than maxBytes is
// rejected instead of truncated. maxBytes <= 0 disables the limit.
func ReadBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r.Body)
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, perrors.NewValidationError("body", fmt.Sprintf("exceeds limit of %d bytes", maxBytes), len(data))
	}
	return data, nil
}

// QueryParam returns the value of a query parameter, or defaultValue if not present.
func QueryParam(r *http.Request, key, defaultValue string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultValue
}

// QueryParamBool returns the boolean value of a query parameter, or defaultValue if not present or invalid.
func QueryParamBool(r *http.Request, key string, defaultValue bool) bool {
	if v := r.URL.Query().Get(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
