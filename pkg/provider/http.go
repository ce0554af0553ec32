package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds what every adapter needs to reach its provider.
type Config struct {
	ID         ID
	Endpoint   string
	GatewayURL string
	APIKey     string
	APISecret  string

	// Timeout bounds a single wire call. If zero, defaults to 60 seconds.
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the provider. Zero disables throttling.
	RequestsPerSecond float64

	Retry RetryPolicy
}

const maxErrorBody = 4 << 10

// httpBase is embedded by every HTTP adapter. It owns timeouts, throttling,
// retries and status classification so the adapters only describe requests.
type httpBase struct {
	id         ID
	endpoint   string
	gatewayURL string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	retry      RetryPolicy
	authorize  func(*http.Request)
	logger     *zap.Logger
}

func newHTTPBase(cfg Config, defaultEndpoint, defaultGateway string, logger *zap.Logger) httpBase {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	gateway := strings.TrimRight(cfg.GatewayURL, "/")
	if gateway == "" {
		gateway = defaultGateway
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return httpBase{
		id:         cfg.ID,
		endpoint:   endpoint,
		gatewayURL: gateway,
		httpClient: &http.Client{},
		timeout:    timeout,
		limiter:    limiter,
		retry:      cfg.Retry,
		authorize:  func(*http.Request) {},
		logger:     logger.With(zap.String("provider", string(cfg.ID))),
	}
}

// ID returns the provider identifier.
func (b *httpBase) ID() ID { return b.id }

// CallBudget bounds one logical call: every attempt at the per-call timeout
// plus the backoff between attempts.
func (b *httpBase) CallBudget() time.Duration {
	return b.retry.Budget(b.timeout)
}

// contentURL returns the public gateway URL for a hash.
func (b *httpBase) contentURL(hash string) string {
	return b.gatewayURL + "/ipfs/" + hash
}

// requestFunc builds a fresh request per attempt, since bodies cannot be replayed.
type requestFunc func(ctx context.Context) (*http.Request, error)

// do executes one logical call with throttling, timeout and retries. decode is
// invoked only for 2xx responses and may be nil.
func (b *httpBase) do(ctx context.Context, op string, build requestFunc, decode func(*http.Response) error) error {
	attempt := 0
	err := b.retry.Do(ctx, func() error {
		attempt++
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return classifyTransport(b.id, op, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		req, err := build(callCtx)
		if err != nil {
			return NewError(b.id, op, KindUnknown, fmt.Sprintf("failed to create %s request: %v", op, err), err)
		}
		b.authorize(req)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return classifyTransport(b.id, op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return classifyStatus(b.id, op, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if decode == nil {
			return nil
		}
		if err := decode(resp); err != nil {
			var ae *AdapterError
			if errors.As(err, &ae) {
				return ae
			}
			return NewError(b.id, op, KindUnknown, fmt.Sprintf("failed to decode %s response: %v", op, err), err)
		}
		return nil
	})
	if err != nil {
		b.logger.Debug("provider call failed",
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return err
}

func decodeJSON(out interface{}) func(*http.Response) error {
	return func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func jsonRequest(method, url string, body interface{}) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			r = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}
