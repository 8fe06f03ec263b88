package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		Endpoint:       url,
		BaseRetryDelay: time.Millisecond,
		MaxRetryDelay:  5 * time.Millisecond,
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.Endpoint() != ProdEndpoint {
		t.Errorf("default endpoint: expected %s, got %s", ProdEndpoint, c.Endpoint())
	}
	if c.config.MaxRetries != 3 {
		t.Errorf("default retries: expected 3, got %d", c.config.MaxRetries)
	}

	c = NewClient(Config{Endpoint: DevEndpoint + "/"})
	if c.Endpoint() != DevEndpoint {
		t.Errorf("trailing slash not trimmed: %s", c.Endpoint())
	}
}

func TestSubmitPlayed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/played" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("ngrok-skip-browser-warning") != "true" {
			t.Errorf("missing ngrok-skip-browser-warning header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing Content-Type header")
		}

		var req PlayedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.TgData != "query_id=1" || req.Wallet != "EQabc" || req.Score != 17 {
			t.Errorf("unexpected body %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"ok":           true,
			"reward":       1.5,
			"achievements": []string{"first-time"},
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	res, err := c.SubmitPlayed(context.Background(), PlayedRequest{TgData: "query_id=1", Wallet: "EQabc", Score: 17})
	if err != nil {
		t.Fatalf("SubmitPlayed: %v", err)
	}
	if !res.Reward.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("reward: expected 1.5, got %s", res.Reward)
	}
	if len(res.Achievements) != 1 || res.Achievements[0] != "first-time" {
		t.Errorf("achievements: got %v", res.Achievements)
	}
}

func TestSubmitPlayedNotOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"bad init data"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SubmitPlayed(context.Background(), PlayedRequest{Score: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Message != "bad init data" {
		t.Errorf("message: got %q", apiErr.Message)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true,"purchases":[{"systemName":"pipe-red"}]}`))
	}))
	defer server.Close()

	purchases, err := newTestClient(server.URL).Purchases(context.Background(), "auth")
	if err != nil {
		t.Fatalf("Purchases: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
	if len(purchases) != 1 || purchases[0].SystemName != "pipe-red" {
		t.Errorf("purchases: got %+v", purchases)
	}
}

func TestRetryGivesUp(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Purchases(context.Background(), "auth")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped 503 HTTPError, got %v", err)
	}
	if hits.Load() != 4 {
		t.Errorf("expected 1 attempt + 3 retries, got %d", hits.Load())
	}
}

func TestSubmitPlayedNotRepeatedAfterFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"connection dropped", func(w http.ResponseWriter, r *http.Request) {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).SubmitPlayed(context.Background(), PlayedRequest{TgData: "query_id=1", Score: 3})
			if err == nil {
				t.Fatal("expected an error")
			}
			if hits.Load() != 1 {
				t.Errorf("a play must be sent once, got %d attempts", hits.Load())
			}
		})
	}
}

func TestSubmitPlayedRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true,"reward":0,"achievements":[]}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).SubmitPlayed(context.Background(), PlayedRequest{TgData: "query_id=1", Score: 3}); err != nil {
		t.Fatalf("SubmitPlayed: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestSubmitPlayedWithoutWallet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if _, ok := body["wallet"]; ok {
			t.Errorf("wallet sent without a connected account: %v", body)
		}
		if body["tg_data"] != "query_id=1" {
			t.Errorf("tg_data: got %v", body["tg_data"])
		}
		w.Write([]byte(`{"ok":true,"reward":0,"achievements":[]}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).SubmitPlayed(context.Background(), PlayedRequest{TgData: "query_id=1", Score: 3}); err != nil {
		t.Fatalf("SubmitPlayed: %v", err)
	}
}

func TestAuthErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "invalid hash", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Purchases(context.Background(), "auth")
	if !IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("auth errors must not be retried, got %d attempts", hits.Load())
	}
}

func TestPurchasesEscapesAuth(t *testing.T) {
	const initData = "query_id=AA&user=%7B%22id%22%3A1%7D&hash=ff"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("auth"); got != initData {
			t.Errorf("auth: expected %q, got %q", initData, got)
		}
		w.Write([]byte(`{"ok":true,"purchases":[]}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).Purchases(context.Background(), initData); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"ok":true,"config":{"network":"testnet","tokenMinter":"EQminter","tokenRecipient":"EQrecipient","achievementCollection":{"first-time":"EQcoll"}}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	for i := 0; i < 3; i++ {
		cfg, err := c.Config(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Network != "testnet" || cfg.TokenRecipient != "EQrecipient" || cfg.AchievementCollection["first-time"] != "EQcoll" {
			t.Errorf("config: got %+v", cfg)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single /config request, got %d", hits.Load())
	}
}

func TestAchievementName(t *testing.T) {
	if got := AchievementName("five-times"); got != "Played 5 times" {
		t.Errorf("five-times: got %q", got)
	}
	if got := AchievementName("secret"); got != "secret" {
		t.Errorf("unknown id should pass through, got %q", got)
	}
}
