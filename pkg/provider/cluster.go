package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// ClusterAdapter pins to a self-hosted IPFS Cluster through its REST API.
type ClusterAdapter struct {
	httpBase
}

// NewClusterAdapter creates an IPFS Cluster adapter.
// If cfg.Endpoint is empty, defaults to "http://localhost:9094".
func NewClusterAdapter(cfg Config, logger *zap.Logger) *ClusterAdapter {
	if cfg.ID == "" {
		cfg.ID = IPFSCluster
	}
	a := &ClusterAdapter{httpBase: newHTTPBase(cfg, "http://localhost:9094", "http://localhost:8080", logger)}
	if cfg.APIKey != "" {
		a.authorize = func(r *http.Request) { r.SetBasicAuth(cfg.APIKey, cfg.APISecret) }
	}
	return a
}

type clusterAddResponse struct {
	Name string `json:"name"`
	Cid  string `json:"cid"`
	Size int64  `json:"size"`
}

// Upload adds content through the cluster's /add endpoint.
func (a *ClusterAdapter) Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*UploadResult, error) {
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

		values := url.Values{}
		if name != "" {
			values.Set("name", name)
		}
		for k, v := range meta {
			values.Set("meta-"+k, v)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/add?"+values.Encode(), &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}

	// The cluster streams NDJSON. The stream must be drained or the cluster
	// cancels the pin; the last object is the root.
	var last clusterAddResponse
	err := a.do(ctx, "upload", build, func(resp *http.Response) error {
		dec := json.NewDecoder(resp.Body)
		for {
			var chunk clusterAddResponse
			if err := dec.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return err
			}
			last = chunk
		}
		if last.Cid == "" {
			return NewError(a.id, "upload", KindUnknown, "add response missing CID", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &UploadResult{Hash: last.Cid, URL: a.contentURL(last.Cid), Size: int64(len(data))}, nil
}

// PinExisting pins a CID the cluster will fetch from the network.
func (a *ClusterAdapter) PinExisting(ctx context.Context, hash string) (*PinResult, error) {
	err := a.do(ctx, "pin", jsonRequest(http.MethodPost, a.endpoint+"/pins/"+url.PathEscape(hash), nil), nil)
	if err != nil {
		return nil, err
	}
	return &PinResult{URL: a.contentURL(hash)}, nil
}

// Unpin removes a pin. A CID unknown to the cluster counts as unpinned.
func (a *ClusterAdapter) Unpin(ctx context.Context, hash string) error {
	err := a.do(ctx, "unpin", jsonRequest(http.MethodDelete, a.endpoint+"/pins/"+url.PathEscape(hash), nil), nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// IsPinned reports whether any cluster peer holds the CID as pinned.
func (a *ClusterAdapter) IsPinned(ctx context.Context, hash string) (bool, error) {
	var gpi struct {
		Cid     string `json:"cid"`
		PeerMap map[string]struct {
			// TrackerStatus can be string or int
			Status interface{} `json:"status"`
		} `json:"peer_map"`
	}
	err := a.do(ctx, "status", jsonRequest(http.MethodGet, a.endpoint+"/pins/"+url.PathEscape(hash), nil), decodeJSON(&gpi))
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, info := range gpi.PeerMap {
		if fmt.Sprint(info.Status) == "pinned" {
			return true, nil
		}
	}
	return false, nil
}

// HealthProbe calls /id.
func (a *ClusterAdapter) HealthProbe(ctx context.Context) error {
	return a.do(ctx, "health", jsonRequest(http.MethodGet, a.endpoint+"/id", nil), nil)
}

// Usage is not exposed by the cluster REST API.
func (a *ClusterAdapter) Usage(ctx context.Context) (*Usage, error) {
	return nil, ErrUsageUnsupported
}
