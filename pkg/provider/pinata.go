package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PinataAdapter talks to the Pinata pinning API.
type PinataAdapter struct {
	httpBase
}

// NewPinataAdapter creates a Pinata adapter. A non-empty APISecret selects
// key/secret header auth; otherwise APIKey is sent as a bearer JWT.
func NewPinataAdapter(cfg Config, logger *zap.Logger) *PinataAdapter {
	if cfg.ID == "" {
		cfg.ID = Pinata
	}
	a := &PinataAdapter{httpBase: newHTTPBase(cfg, "https://api.pinata.cloud", "https://gateway.pinata.cloud", logger)}
	a.authorize = func(r *http.Request) {
		if cfg.APISecret != "" {
			r.Header.Set("pinata_api_key", cfg.APIKey)
			r.Header.Set("pinata_secret_api_key", cfg.APISecret)
			return
		}
		r.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return a
}

type pinataMetadata struct {
	Name      string            `json:"name,omitempty"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

// Upload calls /pinning/pinFileToIPFS.
func (a *PinataAdapter) Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*UploadResult, error) {
	metaJSON, err := json.Marshal(pinataMetadata{Name: name, KeyValues: meta})
	if err != nil {
		return nil, NewError(a.id, "upload", KindUnknown, "failed to encode metadata", err)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := writer.WriteField("pinataMetadata", string(metaJSON)); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/pinning/pinFileToIPFS", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}

	var out struct {
		IpfsHash  string    `json:"IpfsHash"`
		PinSize   int64     `json:"PinSize"`
		Timestamp time.Time `json:"Timestamp"`
	}
	if err := a.do(ctx, "upload", build, decodeJSON(&out)); err != nil {
		return nil, err
	}
	if out.IpfsHash == "" {
		return nil, NewError(a.id, "upload", KindUnknown, "response missing IpfsHash", nil)
	}
	return &UploadResult{Hash: out.IpfsHash, URL: a.contentURL(out.IpfsHash), Size: int64(len(data))}, nil
}

// PinExisting calls /pinning/pinByHash.
func (a *PinataAdapter) PinExisting(ctx context.Context, hash string) (*PinResult, error) {
	body := map[string]interface{}{"hashToPin": hash}
	if err := a.do(ctx, "pin", jsonRequest(http.MethodPost, a.endpoint+"/pinning/pinByHash", body), nil); err != nil {
		return nil, err
	}
	return &PinResult{URL: a.contentURL(hash)}, nil
}

// Unpin calls /pinning/unpin/{cid}.
func (a *PinataAdapter) Unpin(ctx context.Context, hash string) error {
	err := a.do(ctx, "unpin", jsonRequest(http.MethodDelete, a.endpoint+"/pinning/unpin/"+url.PathEscape(hash), nil), nil)
	if IsNotFound(err) || isPinataNotPinned(err) {
		return nil
	}
	return err
}

// Pinata answers 400 rather than 404 when the account never pinned the CID.
func isPinataNotPinned(err error) bool {
	ae := AsAdapterError(Pinata, "unpin", err)
	return ae != nil && ae.StatusCode == http.StatusBadRequest &&
		strings.Contains(ae.Detail, "CURRENT_USER_HAS_NOT_PINNED_CID")
}

// IsPinned queries /data/pinList filtered to the hash.
func (a *PinataAdapter) IsPinned(ctx context.Context, hash string) (bool, error) {
	values := url.Values{}
	values.Set("hashContains", hash)
	values.Set("status", "pinned")
	values.Set("pageLimit", "1")

	var out struct {
		Count int `json:"count"`
		Rows  []struct {
			IpfsPinHash string `json:"ipfs_pin_hash"`
		} `json:"rows"`
	}
	if err := a.do(ctx, "status", jsonRequest(http.MethodGet, a.endpoint+"/data/pinList?"+values.Encode(), nil), decodeJSON(&out)); err != nil {
		return false, err
	}
	for _, row := range out.Rows {
		if row.IpfsPinHash == hash {
			return true, nil
		}
	}
	return false, nil
}

// HealthProbe calls /data/testAuthentication.
func (a *PinataAdapter) HealthProbe(ctx context.Context) error {
	return a.do(ctx, "health", jsonRequest(http.MethodGet, a.endpoint+"/data/testAuthentication", nil), nil)
}

// Usage calls /data/userPinnedDataTotal.
func (a *PinataAdapter) Usage(ctx context.Context) (*Usage, error) {
	var out struct {
		PinCount     int64 `json:"pin_count"`
		PinSizeTotal int64 `json:"pin_size_total"`
	}
	if err := a.do(ctx, "usage", jsonRequest(http.MethodGet, a.endpoint+"/data/userPinnedDataTotal", nil), decodeJSON(&out)); err != nil {
		return nil, err
	}
	return &Usage{PinCount: out.PinCount, UsedBytes: out.PinSizeTotal, ReportedAt: time.Now().UTC()}, nil
}
