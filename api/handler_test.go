package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ephemeral/relay"
	"github.com/ephemeral/relay/api"
)

type fakeBackend struct {
	pingErr  error
	stats    relay.Stats
	statsErr error
	panics   bool
}

func (b *fakeBackend) Ping(context.Context) error { return b.pingErr }

func (b *fakeBackend) Stats(context.Context) (relay.Stats, error) {
	if b.panics {
		panic("stats exploded")
	}
	return b.stats, b.statsErr
}

// testServer creates a Handler around backend and returns the test server.
func testServer(t *testing.T, backend api.Backend, info api.Info, opts ...api.Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewHandler(backend, info, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestInfoDocument(t *testing.T) {
	srv := testServer(t, &fakeBackend{}, api.Info{Name: "test-relay", Contact: "ops@example.com"})

	resp := do(t, http.MethodGet, srv.URL+"/", http.Header{"Accept": {"text/html, application/nostr+json;q=0.9"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != api.InfoContentType {
		t.Fatalf("content type = %q", ct)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("allow origin = %q", origin)
	}

	var info api.Info
	decodeBody(t, resp, &info)
	if info.Name != "test-relay" || info.Contact != "ops@example.com" {
		t.Fatalf("info = %+v", info)
	}

	// Unset fields fall back to the defaults.
	def := api.DefaultInfo()
	if info.Software != def.Software || info.Version != def.Version || len(info.SupportedNIPs) != len(def.SupportedNIPs) {
		t.Fatalf("defaults not applied: %+v", info)
	}
}

func TestInfoOmitsEmptyOptionalFields(t *testing.T) {
	srv := testServer(t, &fakeBackend{}, api.Info{})

	resp := do(t, http.MethodGet, srv.URL+"/", http.Header{"Accept": {api.InfoContentType}})
	var raw map[string]any
	decodeBody(t, resp, &raw)

	if _, ok := raw["pubkey"]; ok {
		t.Fatal("pubkey should be omitted when empty")
	}
	if raw["name"] != api.DefaultInfo().Name {
		t.Fatalf("name = %v", raw["name"])
	}
}

func TestRootBanner(t *testing.T) {
	srv := testServer(t, &fakeBackend{}, api.Info{Name: "test-relay"})

	resp := do(t, http.MethodGet, srv.URL+"/", nil)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(string(body), "test-relay:") {
		t.Fatalf("body = %q", body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("banner should not carry CORS headers")
	}
}

func TestPreflight(t *testing.T) {
	srv := testServer(t, &fakeBackend{}, api.Info{})

	resp := do(t, http.MethodOptions, srv.URL+"/", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("missing allow-methods header")
	}
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := testServer(t, &fakeBackend{}, api.Info{})
		resp := do(t, http.MethodGet, srv.URL+"/healthz", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var body map[string]string
		decodeBody(t, resp, &body)
		if body["status"] != "ok" {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		srv := testServer(t, &fakeBackend{pingErr: relay.ErrStoreClosed}, api.Info{})
		resp := do(t, http.MethodGet, srv.URL+"/healthz", nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var body map[string]string
		decodeBody(t, resp, &body)
		if body["error"] == "" {
			t.Fatalf("body = %v", body)
		}
	})
}

func TestStats(t *testing.T) {
	backend := &fakeBackend{stats: relay.Stats{Events: 3, Subscriptions: 2, Connections: 1}}
	srv := testServer(t, backend, api.Info{})

	resp := do(t, http.MethodGet, srv.URL+"/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]int
	decodeBody(t, resp, &body)
	if body["events"] != 3 || body["subscriptions"] != 2 || body["connections"] != 1 {
		t.Fatalf("body = %v", body)
	}
}

func TestStatsError(t *testing.T) {
	srv := testServer(t, &fakeBackend{statsErr: errors.New("boom")}, api.Info{})

	resp := do(t, http.MethodGet, srv.URL+"/stats", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := testServer(t, &fakeBackend{}, api.Info{})
		resp := do(t, http.MethodGet, srv.URL+"/metrics", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("relay_connections 0\n"))
		})
		srv := testServer(t, &fakeBackend{}, api.Info{}, api.WithMetricsHandler(metrics))
		resp := do(t, http.MethodGet, srv.URL+"/metrics", nil)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "relay_connections") {
			t.Fatalf("status = %d body = %q", resp.StatusCode, body)
		}
	})
}

func TestPanicRecovery(t *testing.T) {
	srv := testServer(t, &fakeBackend{panics: true}, api.Info{})

	resp := do(t, http.MethodGet, srv.URL+"/stats", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "internal server error" {
		t.Fatalf("body = %v", body)
	}
}
