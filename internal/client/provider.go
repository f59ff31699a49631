// Package client talks to the remote reverse-geocoding provider and maps its
// feature-collection responses onto models.Location.
package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kjstillabower/hotspot-location-service/internal/circuitbreaker"
	"github.com/kjstillabower/hotspot-location-service/internal/observability"
	"github.com/kjstillabower/hotspot-location-service/internal/retry"
)

var (
	ErrUnauthorized    = errors.New("provider rejected access token")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrCircuitOpen     = errors.New("provider circuit open")
)

// maxResponseBytes bounds how much of a provider body is read.
const maxResponseBytes = 4 << 20

// Params are the query parameters of one reverse lookup.
type Params struct {
	Latitude  float64
	Longitude float64
	Language  string
}

// Provider performs a single GET against the geocoding API and returns the
// raw response body. Non-2xx responses and network failures are returned as
// *retry.TransportError.
type Provider interface {
	Get(ctx context.Context, path string, params Params) ([]byte, error)
}

// HTTPProvider is the Provider backed by net/http.
type HTTPProvider struct {
	baseURL     *url.URL
	accessToken string
	timeout     time.Duration
	client      *http.Client
	breaker     *circuitbreaker.CircuitBreaker
}

// NewHTTPProvider validates the base URL and token and returns a provider
// whose requests are bounded by timeout.
func NewHTTPProvider(baseURL, accessToken string, timeout time.Duration) (*HTTPProvider, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, eris.Wrap(ErrUnauthorized, "access token is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, eris.Errorf("invalid provider url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:     u,
		accessToken: accessToken,
		timeout:     timeout,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker guards every Get with cb. Nil disables the breaker.
func (p *HTTPProvider) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	p.breaker = cb
}

// Get implements Provider.
func (p *HTTPProvider) Get(ctx context.Context, path string, params Params) ([]byte, error) {
	if p.breaker == nil {
		return p.get(ctx, path, params)
	}

	var body []byte
	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		body, err = p.get(ctx, path, params)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.ProviderCallsTotal.WithLabelValues("circuit_open").Inc()
		return nil, &retry.TransportError{Err: ErrCircuitOpen}
	}
	return body, err
}

func (p *HTTPProvider) get(ctx context.Context, path string, params Params) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.buildRequest(reqCtx, path, params)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues("error").Inc()
		observability.ProviderDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &retry.TransportError{Err: eris.Wrap(err, "provider request")}
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(status).Inc()
	observability.ProviderDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, &retry.TransportError{Err: err, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &retry.TransportError{Err: eris.Wrap(err, "read provider response"), StatusCode: resp.StatusCode}
	}
	return body, nil
}

func (p *HTTPProvider) buildRequest(ctx context.Context, path string, params Params) (*http.Request, error) {
	u := *p.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	q := url.Values{}
	q.Set("longitude", strconv.FormatFloat(params.Longitude, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(params.Latitude, 'f', -1, 64))
	if params.Language != "" {
		q.Set("language", params.Language)
	}
	q.Set("access_token", p.accessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return eris.Wrapf(ErrUpstreamFailure, "HTTP %d", code)
	default:
		return eris.Errorf("unexpected provider status %d", code)
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
