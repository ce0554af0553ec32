package registry

import (
	"testing"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(adapters []provider.Adapter) []provider.ID {
	out := make([]provider.ID, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a.ID())
	}
	return out
}

func TestRegistryOrdersByPriority(t *testing.T) {
	r := New(
		Entry{Adapter: providertest.New("c"), Priority: 3, Enabled: true},
		Entry{Adapter: providertest.New("a"), Priority: 1, Enabled: true},
		Entry{Adapter: providertest.New("z"), Priority: 2, Enabled: true},
		Entry{Adapter: providertest.New("b"), Priority: 2, Enabled: true},
		Entry{Adapter: providertest.New("off"), Priority: 0, Enabled: false},
	)

	assert.Equal(t, []provider.ID{"a", "b", "z", "c"}, ids(r.All()))
	assert.Len(t, r.Entries(), 5)
}

func TestRegistryFiltersUnhealthy(t *testing.T) {
	r := New(
		Entry{Adapter: providertest.New("a"), Priority: 1, Enabled: true},
		Entry{Adapter: providertest.New("b"), Priority: 2, Enabled: true},
		Entry{Adapter: providertest.New("c"), Priority: 3, Enabled: true},
	)

	// unknown providers are eligible before the first probe
	assert.Equal(t, []provider.ID{"a", "b", "c"}, ids(r.EnabledHealthy()))

	r.Publish(NewSnapshot(time.Now(), []ProviderHealth{
		{Provider: "a", Enabled: true, Healthy: true, State: StateHealthy},
		{Provider: "b", Enabled: true, Healthy: false, State: StateUnhealthy},
		{Provider: "c", Enabled: true, Healthy: true, State: StateHealthy},
	}))

	assert.Equal(t, []provider.ID{"a", "c"}, ids(r.EnabledHealthy()))
	assert.Equal(t, []provider.ID{"a", "b", "c"}, ids(r.All()))

	h, ok := r.Snapshot().Get("b")
	require.True(t, ok)
	assert.Equal(t, StateUnhealthy, h.State)
}

func TestRegistryGet(t *testing.T) {
	r := New(Entry{Adapter: providertest.New(provider.Pinata), Priority: 1, Enabled: true})
	a, ok := r.Get(provider.Pinata)
	require.True(t, ok)
	assert.Equal(t, provider.Pinata, a.ID())

	_, ok = r.Get(provider.Infura)
	assert.False(t, ok)
}

func TestRegistryMarkUnhealthyCopiesSnapshot(t *testing.T) {
	r := New(
		Entry{Adapter: providertest.New("a"), Priority: 1, Enabled: true},
		Entry{Adapter: providertest.New("b"), Priority: 2, Enabled: true},
	)
	before := r.Snapshot()

	require.True(t, r.MarkUnhealthy("b", "auth failure", time.Now()))
	assert.False(t, r.MarkUnhealthy("b", "auth failure", time.Now()), "already unhealthy")
	assert.False(t, r.MarkUnhealthy("missing", "x", time.Now()))

	assert.Equal(t, []provider.ID{"a"}, ids(r.EnabledHealthy()))
	h, _ := r.Snapshot().Get("b")
	assert.Equal(t, StateUnhealthy, h.State)
	assert.Equal(t, "auth failure", h.LastError)

	old, _ := before.Get("b")
	assert.Equal(t, StateUnknown, old.State, "published snapshots are never mutated")
}
