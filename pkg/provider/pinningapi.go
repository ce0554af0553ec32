package provider

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// PinningAPIAdapter speaks the IPFS Pinning Service API plus the /upload
// extension shared by Web3.Storage and NFT.Storage.
type PinningAPIAdapter struct {
	httpBase
}

// NewWeb3StorageAdapter creates a Web3.Storage adapter.
func NewWeb3StorageAdapter(cfg Config, logger *zap.Logger) *PinningAPIAdapter {
	if cfg.ID == "" {
		cfg.ID = Web3Storage
	}
	return newPinningAPIAdapter(cfg, "https://api.web3.storage", "https://w3s.link", logger)
}

// NewNFTStorageAdapter creates an NFT.Storage adapter.
func NewNFTStorageAdapter(cfg Config, logger *zap.Logger) *PinningAPIAdapter {
	if cfg.ID == "" {
		cfg.ID = NFTStorage
	}
	return newPinningAPIAdapter(cfg, "https://api.nft.storage", "https://nftstorage.link", logger)
}

func newPinningAPIAdapter(cfg Config, endpoint, gateway string, logger *zap.Logger) *PinningAPIAdapter {
	a := &PinningAPIAdapter{httpBase: newHTTPBase(cfg, endpoint, gateway, logger)}
	a.authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+cfg.APIKey) }
	return a
}

type pinStatus struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Pin       struct {
		Cid  string `json:"cid"`
		Name string `json:"name"`
	} `json:"pin"`
}

type pinStatusList struct {
	Count   int         `json:"count"`
	Results []pinStatus `json:"results"`
}

// Upload posts the raw bytes to /upload.
func (a *PinningAPIAdapter) Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*UploadResult, error) {
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/upload", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		if name != "" {
			req.Header.Set("X-Name", url.QueryEscape(name))
		}
		return req, nil
	}

	var out struct {
		Cid string `json:"cid"`
	}
	if err := a.do(ctx, "upload", build, decodeJSON(&out)); err != nil {
		return nil, err
	}
	if out.Cid == "" {
		return nil, NewError(a.id, "upload", KindUnknown, "upload response missing cid", nil)
	}
	return &UploadResult{Hash: out.Cid, URL: a.contentURL(out.Cid), Size: int64(len(data))}, nil
}

// PinExisting creates a pin request via POST /pins.
func (a *PinningAPIAdapter) PinExisting(ctx context.Context, hash string) (*PinResult, error) {
	var out pinStatus
	body := map[string]string{"cid": hash}
	if err := a.do(ctx, "pin", jsonRequest(http.MethodPost, a.endpoint+"/pins", body), decodeJSON(&out)); err != nil {
		return nil, err
	}
	if out.Status == "failed" {
		return nil, NewError(a.id, "pin", KindRemoteServerError, "pin request "+out.RequestID+" failed", nil)
	}
	return &PinResult{URL: a.contentURL(hash)}, nil
}

func (a *PinningAPIAdapter) listPins(ctx context.Context, op, hash string, statuses ...string) (*pinStatusList, error) {
	values := url.Values{}
	values.Set("cid", hash)
	if len(statuses) > 0 {
		values.Set("status", strings.Join(statuses, ","))
	}
	var out pinStatusList
	if err := a.do(ctx, op, jsonRequest(http.MethodGet, a.endpoint+"/pins?"+values.Encode(), nil), decodeJSON(&out)); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unpin deletes every pin request referencing the hash.
func (a *PinningAPIAdapter) Unpin(ctx context.Context, hash string) error {
	list, err := a.listPins(ctx, "unpin", hash, "queued", "pinning", "pinned", "failed")
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, p := range list.Results {
		err := a.do(ctx, "unpin", jsonRequest(http.MethodDelete, a.endpoint+"/pins/"+url.PathEscape(p.RequestID), nil), nil)
		if err != nil && !IsNotFound(err) {
			return err
		}
	}
	return nil
}

// IsPinned reports whether a pin request for the hash reached "pinned".
func (a *PinningAPIAdapter) IsPinned(ctx context.Context, hash string) (bool, error) {
	list, err := a.listPins(ctx, "status", hash, "pinned")
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, p := range list.Results {
		if p.Pin.Cid == hash && p.Status == "pinned" {
			return true, nil
		}
	}
	return false, nil
}

// HealthProbe lists a single pin.
func (a *PinningAPIAdapter) HealthProbe(ctx context.Context) error {
	return a.do(ctx, "health", jsonRequest(http.MethodGet, a.endpoint+"/pins?limit=1", nil), nil)
}

// Usage is not part of the Pinning Service API.
func (a *PinningAPIAdapter) Usage(ctx context.Context) (*Usage, error) {
	return nil, ErrUsageUnsupported
}
