package provider

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// InfuraAdapter talks to Infura's IPFS HTTP RPC with project key/secret basic auth.
type InfuraAdapter struct {
	httpBase
}

// NewInfuraAdapter creates an Infura adapter.
func NewInfuraAdapter(cfg Config, logger *zap.Logger) *InfuraAdapter {
	if cfg.ID == "" {
		cfg.ID = Infura
	}
	a := &InfuraAdapter{httpBase: newHTTPBase(cfg, "https://ipfs.infura.io:5001", "https://ipfs.io", logger)}
	a.authorize = func(r *http.Request) { r.SetBasicAuth(cfg.APIKey, cfg.APISecret) }

	// "not pinned" comes back as a 500 and is an answer, not an outage.
	a.retry = cfg.Retry.withDefaults()
	retryable := a.retry.Retryable
	a.retry.Retryable = func(err error) bool { return !isNotPinnedRPC(err) && retryable(err) }
	return a
}

func (a *InfuraAdapter) rpc(path string, args url.Values) requestFunc {
	u := a.endpoint + "/api/v0/" + path
	if len(args) > 0 {
		u += "?" + args.Encode()
	}
	return jsonRequest(http.MethodPost, u, nil)
}

// Upload calls /api/v0/add with pin=true.
func (a *InfuraAdapter) Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*UploadResult, error) {
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
		if err := writer.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/api/v0/add?pin=true&cid-version=1", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}

	var out struct {
		Name string `json:"Name"`
		Hash string `json:"Hash"`
		Size string `json:"Size"`
	}
	if err := a.do(ctx, "upload", build, decodeJSON(&out)); err != nil {
		return nil, err
	}
	if out.Hash == "" {
		return nil, NewError(a.id, "upload", KindUnknown, "add response missing Hash", nil)
	}
	return &UploadResult{Hash: out.Hash, URL: a.contentURL(out.Hash), Size: int64(len(data))}, nil
}

// PinExisting calls /api/v0/pin/add.
func (a *InfuraAdapter) PinExisting(ctx context.Context, hash string) (*PinResult, error) {
	if err := a.do(ctx, "pin", a.rpc("pin/add", url.Values{"arg": {hash}}), nil); err != nil {
		return nil, err
	}
	return &PinResult{URL: a.contentURL(hash)}, nil
}

// Unpin calls /api/v0/pin/rm. Kubo answers 500 "not pinned" for unknown pins.
func (a *InfuraAdapter) Unpin(ctx context.Context, hash string) error {
	err := a.do(ctx, "unpin", a.rpc("pin/rm", url.Values{"arg": {hash}}), nil)
	if err == nil || IsNotFound(err) || isNotPinnedRPC(err) {
		return nil
	}
	return err
}

func isNotPinnedRPC(err error) bool {
	ae := AsAdapterError(Infura, "", err)
	return ae != nil && strings.Contains(ae.Detail, "not pinned")
}

// IsPinned calls /api/v0/pin/ls for a recursive pin.
func (a *InfuraAdapter) IsPinned(ctx context.Context, hash string) (bool, error) {
	var out struct {
		Keys map[string]struct {
			Type string `json:"Type"`
		} `json:"Keys"`
	}
	err := a.do(ctx, "status", a.rpc("pin/ls", url.Values{"arg": {hash}, "type": {"recursive"}}), decodeJSON(&out))
	if err != nil {
		if IsNotFound(err) || isNotPinnedRPC(err) {
			return false, nil
		}
		return false, err
	}
	_, ok := out.Keys[hash]
	return ok, nil
}

// HealthProbe calls /api/v0/version.
func (a *InfuraAdapter) HealthProbe(ctx context.Context) error {
	return a.do(ctx, "health", a.rpc("version", nil), nil)
}

// Usage calls /api/v0/repo/stat.
func (a *InfuraAdapter) Usage(ctx context.Context) (*Usage, error) {
	var out struct {
		RepoSize   int64 `json:"RepoSize"`
		StorageMax int64 `json:"StorageMax"`
		NumObjects int64 `json:"NumObjects"`
	}
	if err := a.do(ctx, "usage", a.rpc("repo/stat", url.Values{"size-only": {"true"}}), decodeJSON(&out)); err != nil {
		return nil, err
	}
	return &Usage{PinCount: out.NumObjects, UsedBytes: out.RepoSize, QuotaBytes: out.StorageMax, ReportedAt: time.Now().UTC()}, nil
}
