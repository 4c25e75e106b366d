package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/ytgate/internal/models"
	"github.com/desertthunder/ytgate/internal/shared"
	tu "github.com/desertthunder/ytgate/internal/testing"
)

func TestAPIService(t *testing.T) {
	cred := tu.TestCredential()

	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com/", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
			if srv.limiter != nil {
				t.Error("expected no limiter by default")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != "http://localhost:8080" {
				t.Errorf("expected default baseURL 'http://localhost:8080', got %s", srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})

		t.Run("With Rate Limit", func(t *testing.T) {
			srv := NewAPIService("", nil, WithRateLimit(5, 0))
			if srv.limiter == nil || srv.limiter.Burst() != 1 {
				t.Error("expected limiter with burst of at least 1")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Forwards Caller Token", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/library/playlists" {
					t.Errorf("expected path '/library/playlists', got %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer "+cred.Token {
					t.Errorf("expected caller access token, got %q", got)
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode([]map[string]string{{"playlistId": "PL1"}})
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil)
			resp, err := srv.Get(context.Background(), "library/playlists", &cred)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if !strings.Contains(string(resp.Body), `"playlistId":"PL1"`) {
				t.Errorf("unexpected body %s", resp.Body)
			}
		})

		t.Run("Body Is Returned Verbatim", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.Write([]byte("plain text response"))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test", &cred)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if string(resp.Body) != "plain text response" {
				t.Errorf("expected body 'plain text response', got %s", string(resp.Body))
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			_, err := NewAPIService("http://example.com", nil).Get(context.Background(), "/test\x00invalid", &cred)
			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed")),
			}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test", &cred)
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test", &cred)
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := NewAPIService(server.URL, nil).Get(ctx, "/test", &cred); err == nil {
				t.Error("expected error for canceled context")
			}
		})

		t.Run("Response Headers Are Preserved", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Custom-Header", "test-value")
				w.Write([]byte("test"))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test", &cred)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.Headers.Get("X-Custom-Header") != "test-value" {
				t.Errorf("expected custom header 'test-value', got %s", resp.Headers.Get("X-Custom-Header"))
			}
		})
	})

	t.Run("Do POST", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST method, got %s", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type 'application/json', got %s", r.Header.Get("Content-Type"))
			}

			body, _ := io.ReadAll(r.Body)
			var data map[string]string
			if err := json.Unmarshal(body, &data); err != nil || data["title"] != "Road trip" {
				t.Errorf("unexpected request body %s", body)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"playlistId": "PL2"})
		}))
		defer server.Close()

		requestData, _ := json.Marshal(map[string]string{"title": "Road trip"})
		resp, err := NewAPIService(server.URL, nil).Do(context.Background(), APIRequest{
			Method:     http.MethodPost,
			Path:       "/playlists",
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       strings.NewReader(string(requestData)),
			Credential: &cred,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("expected status 201, got %d", resp.StatusCode)
		}
	})

	t.Run("Do", func(t *testing.T) {
		t.Run("Query And Selected Headers", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.RawQuery != "q=lofi&filter=songs" {
					t.Errorf("query not preserved: %q", r.URL.RawQuery)
				}
				if r.Header.Get("X-Request-ID") != "req-1" {
					t.Errorf("request id not forwarded")
				}
				if r.Header.Get("Cookie") != "" {
					t.Errorf("cookies must not be forwarded")
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			header := http.Header{}
			header.Set("X-Request-ID", "req-1")
			header.Set("Cookie", "session=secret")
			header.Set("Authorization", "Bearer gateway-session")

			resp, err := NewAPIService(server.URL, nil).Do(context.Background(), APIRequest{
				Path:       "/search",
				RawQuery:   "q=lofi&filter=songs",
				Header:     header,
				Credential: &models.Credential{Token: "ya29.upstream"},
			})
			if err != nil {
				t.Fatalf("Do failed: %v", err)
			}
			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("expected 204, got %d", resp.StatusCode)
			}
		})

		t.Run("Body Size Limit", func(t *testing.T) {
			var size atomic.Int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(strings.Repeat("x", int(size.Load()))))
			}))
			defer server.Close()
			srv := NewAPIService(server.URL, nil)

			size.Store(MaxResponseBytes)
			resp, err := srv.Get(context.Background(), "/big", &cred)
			if err != nil {
				t.Fatalf("body at the limit should pass: %v", err)
			}
			if len(resp.Body) != MaxResponseBytes {
				t.Errorf("expected %d bytes, got %d", MaxResponseBytes, len(resp.Body))
			}

			size.Store(MaxResponseBytes + 100)
			if _, err := srv.Get(context.Background(), "/big", &cred); !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest for an oversized body, got %v", err)
			}
		})

		t.Run("Throttle Honors Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, WithRateLimit(0.1, 1))
			if _, err := srv.Get(context.Background(), "/", &cred); err != nil {
				t.Fatalf("first request should use the burst: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			if _, err := srv.Get(ctx, "/", &cred); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable while throttled, got %v", err)
			}
		})
	})

	t.Run("Ping", func(t *testing.T) {
		var status atomic.Int32
		status.Store(http.StatusOK)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(int(status.Load()))
		}))
		defer server.Close()

		srv := NewAPIService(server.URL, nil)
		if err := srv.Ping(context.Background()); err != nil {
			t.Errorf("expected healthy upstream, got %v", err)
		}

		status.Store(http.StatusBadGateway)
		if err := srv.Ping(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
