// API service for forwarding gated requests to the ytmusicapi proxy
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
)

// MaxResponseBytes caps how much of an upstream body is buffered.
const MaxResponseBytes = 10 << 20

// forwardedHeaders are copied from the client request to the upstream request.
var forwardedHeaders = []string{"Accept", "Accept-Language", "Content-Type", "X-Request-ID"}

// APIService makes HTTP requests to the ytmusicapi proxy on behalf of a verified caller.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// APIOption configures an [APIService].
type APIOption func(*APIService)

// WithRateLimit throttles outbound requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) APIOption {
	return func(a *APIService) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// NewAPIService creates a new API service instance for the ytmusicapi proxy.
func NewAPIService(baseURL string, client *http.Client, opts ...APIOption) *APIService {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// APIRequest describes one forwarded call. Path is relative to the proxy root.
type APIRequest struct {
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       io.Reader
	Credential *models.Credential
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do sends req upstream with the caller's access token and buffers the response.
func (a *APIService) Do(ctx context.Context, req APIRequest) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: upstream throttle: %v", shared.ErrServiceUnavailable, err)
		}
	}

	fullURL := a.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if req.RawQuery != "" {
		fullURL += "?" + req.RawQuery
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	out, err := http.NewRequestWithContext(ctx, method, fullURL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for _, h := range forwardedHeaders {
		if v := req.Header.Get(h); v != "" {
			out.Header.Set(h, v)
		}
	}
	if req.Credential != nil {
		out.Header.Set("Authorization", "Bearer "+req.Credential.Token)
	}

	resp, err := a.httpClient.Do(out)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("%w: response from %s exceeds %d bytes", shared.ErrAPIRequest, req.Path, MaxResponseBytes)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string, cred *models.Credential) (*APIResponse, error) {
	return a.Do(ctx, APIRequest{Method: http.MethodGet, Path: path, Credential: cred})
}

// Ping checks that the proxy answers at its root.
func (a *APIService) Ping(ctx context.Context) error {
	resp, err := a.Get(ctx, "/", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: upstream returned %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}
