// Package providertest provides a scriptable in-memory provider.Adapter.
package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Operation names used for scripting failures and counting calls.
const (
	OpUpload = "upload"
	OpPin    = "pin"
	OpUnpin  = "unpin"
	OpStatus = "status"
	OpHealth = "health"
	OpUsage  = "usage"
)

// HashOf returns the CIDv1 (raw, sha2-256) every fake assigns to data, so
// fakes agree on the hash of identical content like real providers do.
func HashOf(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// Fake is an in-memory pinning provider.
type Fake struct {
	id provider.ID

	mu    sync.Mutex
	pins  map[string]bool
	calls map[string]int
	errs  map[string]error
	delay time.Duration
	usage *provider.Usage
}

var _ provider.Adapter = (*Fake)(nil)

// New returns an empty fake for id.
func New(id provider.ID) *Fake {
	return &Fake{
		id:    id,
		pins:  make(map[string]bool),
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
}

// FailOn makes every subsequent call to op return err until Clear.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

// FailKind is FailOn with an AdapterError of the given kind.
func (f *Fake) FailKind(op string, kind provider.Kind) {
	f.FailOn(op, provider.NewError(f.id, op, kind, "scripted failure", nil))
}

// Clear removes a scripted failure.
func (f *Fake) Clear(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, op)
}

// SetDelay makes every call block for d or until its context ends.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SetUsage sets the value returned by Usage.
func (f *Fake) SetUsage(u *provider.Usage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = u
}

// SetPinned forces the pin state of hash, e.g. to simulate a silently dropped pin.
func (f *Fake) SetPinned(hash string, pinned bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pinned {
		f.pins[hash] = true
	} else {
		delete(f.pins, hash)
	}
}

// Holds reports the fake's pin state without counting a call.
func (f *Fake) Holds(hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pins[hash]
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ContentCalls counts upload, pin, unpin and status calls; probes and usage are excluded.
func (f *Fake) ContentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[OpUpload] + f.calls[OpPin] + f.calls[OpUnpin] + f.calls[OpStatus]
}

// ResetCalls zeroes the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	err := f.errs[op]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return provider.AsAdapterError(f.id, op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}

func (f *Fake) ID() provider.ID { return f.id }

func (f *Fake) Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*provider.UploadResult, error) {
	if err := f.enter(ctx, OpUpload); err != nil {
		return nil, err
	}
	hash := HashOf(data)
	f.SetPinned(hash, true)
	return &provider.UploadResult{Hash: hash, URL: f.url(hash), Size: int64(len(data))}, nil
}

func (f *Fake) PinExisting(ctx context.Context, hash string) (*provider.PinResult, error) {
	if err := f.enter(ctx, OpPin); err != nil {
		return nil, err
	}
	f.SetPinned(hash, true)
	return &provider.PinResult{URL: f.url(hash)}, nil
}

func (f *Fake) Unpin(ctx context.Context, hash string) error {
	if err := f.enter(ctx, OpUnpin); err != nil {
		return err
	}
	f.SetPinned(hash, false)
	return nil
}

func (f *Fake) IsPinned(ctx context.Context, hash string) (bool, error) {
	if err := f.enter(ctx, OpStatus); err != nil {
		return false, err
	}
	return f.Holds(hash), nil
}

func (f *Fake) HealthProbe(ctx context.Context) error {
	return f.enter(ctx, OpHealth)
}

func (f *Fake) Usage(ctx context.Context) (*provider.Usage, error) {
	if err := f.enter(ctx, OpUsage); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage == nil {
		return nil, provider.ErrUsageUnsupported
	}
	u := *f.usage
	return &u, nil
}

func (f *Fake) url(hash string) string {
	return "https://" + string(f.id) + ".example/ipfs/" + hash
}
