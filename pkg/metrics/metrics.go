// Package metrics exports provider call and replication metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pinvault"

// Recorder owns every pinvault collector on its own registry.
type Recorder struct {
	registry        *prometheus.Registry
	calls           *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	providerHealthy *prometheus.GaugeVec
	underReplicated prometheus.Gauge
	repairs         *prometheus.CounterVec
}

// NewRecorder creates a recorder with Go runtime and process collectors attached.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Provider adapter calls by outcome",
			},
			[]string{"provider", "op", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider adapter call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "op"},
		),
		providerHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_healthy",
				Help:      "1 when the provider is eligible for new pins",
			},
			[]string{"provider"},
		),
		underReplicated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "under_replicated_content",
			Help:      "Tracked content below its redundancy target in the last health cycle",
		}),
		repairs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Repair attempts by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// ObserveCall records one adapter call.
func (r *Recorder) ObserveCall(id provider.ID, op string, d time.Duration, err error) {
	r.calls.WithLabelValues(string(id), op, outcomeLabel(err)).Inc()
	r.callDuration.WithLabelValues(string(id), op).Observe(d.Seconds())
}

// ReportSnapshot sets the per-provider health gauge.
func (r *Recorder) ReportSnapshot(s *registry.Snapshot) {
	for _, h := range s.All() {
		v := 0.0
		if h.Healthy {
			v = 1
		}
		r.providerHealthy.WithLabelValues(string(h.Provider)).Set(v)
	}
}

// ReportUnderReplicated sets the under-replicated gauge.
func (r *Recorder) ReportUnderReplicated(n int) {
	r.underReplicated.Set(float64(n))
}

// ObserveRepair counts one repair attempt; result is e.g. "repaired", "noop" or "failed".
func (r *Recorder) ObserveRepair(result string) {
	r.repairs.WithLabelValues(result).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var ae *provider.AdapterError
	if errors.As(err, &ae) {
		return string(ae.Kind)
	}
	if errors.Is(err, provider.ErrUsageUnsupported) {
		return "unsupported"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(provider.KindTimeout)
	}
	return string(provider.KindUnknown)
}

// Instrument wraps an adapter so every call is recorded on r.
func Instrument(a provider.Adapter, r *Recorder) provider.Adapter {
	if r == nil {
		return a
	}
	return &instrumented{next: a, rec: r}
}

type instrumented struct {
	next provider.Adapter
	rec  *Recorder
}

func (i *instrumented) observe(op string, started time.Time, err error) {
	i.rec.ObserveCall(i.next.ID(), op, time.Since(started), err)
}

func (i *instrumented) ID() provider.ID { return i.next.ID() }

// CallBudget forwards the wrapped adapter's budget, or 0 when it has none.
func (i *instrumented) CallBudget() time.Duration {
	d, _ := provider.CallBudget(i.next)
	return d
}

func (i *instrumented) Upload(ctx context.Context, data []byte, name string, meta map[string]string) (*provider.UploadResult, error) {
	started := time.Now()
	res, err := i.next.Upload(ctx, data, name, meta)
	i.observe("upload", started, err)
	return res, err
}

func (i *instrumented) PinExisting(ctx context.Context, hash string) (*provider.PinResult, error) {
	started := time.Now()
	res, err := i.next.PinExisting(ctx, hash)
	i.observe("pin", started, err)
	return res, err
}

func (i *instrumented) Unpin(ctx context.Context, hash string) error {
	started := time.Now()
	err := i.next.Unpin(ctx, hash)
	i.observe("unpin", started, err)
	return err
}

func (i *instrumented) IsPinned(ctx context.Context, hash string) (bool, error) {
	started := time.Now()
	ok, err := i.next.IsPinned(ctx, hash)
	i.observe("status", started, err)
	return ok, err
}

func (i *instrumented) HealthProbe(ctx context.Context) error {
	started := time.Now()
	err := i.next.HealthProbe(ctx)
	i.observe("health", started, err)
	return err
}

func (i *instrumented) Usage(ctx context.Context) (*provider.Usage, error) {
	started := time.Now()
	u, err := i.next.Usage(ctx)
	i.observe("usage", started, err)
	return u, err
}
