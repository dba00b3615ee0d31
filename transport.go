package payclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	defaultServiceURL = "https://api.payment-service.internal"
	defaultAPIKey     = "test_key_12345"
	userAgent         = "checkout-processor/1.0"

	chargePath = "/v1/charges"
	healthPath = "/health"

	pingTimeout = 5 * time.Second
)

// Environment variables honored by NewHTTPTransport.
const (
	EnvServiceURL = "PAYMENT_SERVICE_URL"
	EnvAPIKey     = "PAYMENT_API_KEY"
)

// HTTPTransport sends charge calls to the payment service over HTTP. It
// implements Transport and Pinger.
type HTTPTransport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithBaseURL overrides the payment service base URL.
func WithBaseURL(baseURL string) TransportOption {
	return func(t *HTTPTransport) {
		if baseURL != "" {
			t.baseURL = baseURL
		}
	}
}

// WithAPIKey overrides the bearer token used on every request.
func WithAPIKey(apiKey string) TransportOption {
	return func(t *HTTPTransport) {
		if apiKey != "" {
			t.apiKey = apiKey
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithTransportLogger sets the logger for transport operations.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *HTTPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewHTTPTransport creates a transport against the payment service. The
// base URL comes from PAYMENT_SERVICE_URL and the bearer token from
// PAYMENT_API_KEY unless overridden by options; a missing token falls
// back to the shared test key with a warning, matching the service's
// sandbox behavior.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    defaultServiceURL,
		apiKey:     "",
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}

	if url := os.Getenv(EnvServiceURL); url != "" {
		t.baseURL = url
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		t.apiKey = key
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.apiKey == "" {
		t.logger.Warn("PAYMENT_API_KEY not set, using default test key")
		t.apiKey = defaultAPIKey
	}

	return t
}

// Send implements Transport. It POSTs the charge to /v1/charges bounded
// by the context deadline and returns the raw status and body; HTTP-level
// rejections are not errors here, classification belongs to the caller.
func (t *HTTPTransport) Send(ctx context.Context, req ChargeRequest) (*ProviderResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding charge request: %w", err)
	}

	url := t.baseURL + chargePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	httpReq.Header.Set("User-Agent", userAgent)

	t.logger.Debug("sending charge request", "url", url)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading charge response: %w", err)
	}

	t.logger.Debug("payment service response",
		"status", resp.StatusCode,
		"bytes", len(body))

	return &ProviderResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// Ping implements Pinger with a bounded GET against the service health
// endpoint.
func (t *HTTPTransport) Ping(ctx context.Context) PingStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+healthPath, nil)
	if err != nil {
		return PingStatus{Status: StatusUnhealthy, Error: err.Error()}
	}

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return PingStatus{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	status := StatusHealthy
	if resp.StatusCode != http.StatusOK {
		status = StatusUnhealthy
	}

	return PingStatus{
		Status:       status,
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(start),
	}
}
