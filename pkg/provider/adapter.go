// Package provider implements the uniform capability contract over the
// third-party pinning services content is replicated to.
package provider

import (
	"context"
	"errors"
	"time"
)

// ID identifies one configured pinning provider.
type ID string

const (
	Pinata      ID = "pinata"
	Web3Storage ID = "web3storage"
	NFTStorage  ID = "nftstorage"
	Infura      ID = "infura"
	IPFSCluster ID = "ipfs_cluster"
)

// Known lists every provider variant this package can build.
var Known = []ID{Pinata, Web3Storage, NFTStorage, Infura, IPFSCluster}

// ErrUsageUnsupported is returned by adapters whose provider exposes no
// usage or quota endpoint.
var ErrUsageUnsupported = errors.New("provider does not report storage usage")

// Adapter encapsulates the wire protocol of one pinning provider.
// Every method is blocking I/O and honors ctx cancellation.
type Adapter interface {
	// ID returns the provider this adapter talks to.
	ID() ID

	// Upload sends raw bytes and returns the content hash the provider assigned.
	Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*UploadResult, error)

	// PinExisting asks the provider to fetch and pin a hash from the public network.
	PinExisting(ctx context.Context, hash string) (*PinResult, error)

	// Unpin removes the pin. Unpinning a hash the provider does not hold succeeds.
	Unpin(ctx context.Context, hash string) error

	// IsPinned reports whether the provider currently holds a pin for hash.
	IsPinned(ctx context.Context, hash string) (bool, error)

	// HealthProbe performs a lightweight authenticated call.
	HealthProbe(ctx context.Context) error

	// Usage reports storage consumed at the provider.
	Usage(ctx context.Context) (*Usage, error)
}

// Budgeted is implemented by adapters that bound their own calls. The
// budget covers every attempt and the backoff between them.
type Budgeted interface {
	CallBudget() time.Duration
}

// CallBudget returns the longest one logical call on a can take, if a
// reports it.
func CallBudget(a Adapter) (time.Duration, bool) {
	b, ok := a.(Budgeted)
	if !ok {
		return 0, false
	}
	d := b.CallBudget()
	return d, d > 0
}

// UploadResult is returned by a successful Upload.
type UploadResult struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// PinResult is returned by a successful PinExisting.
type PinResult struct {
	URL string `json:"url"`
}

// Usage is a provider's reported storage consumption.
type Usage struct {
	PinCount   int64     `json:"pin_count"`
	UsedBytes  int64     `json:"used_bytes"`
	QuotaBytes int64     `json:"quota_bytes,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}
