package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/chriscorrea/playnext/internal/app"
	"github.com/chriscorrea/playnext/internal/catalog"
	"github.com/chriscorrea/playnext/internal/recommend"
)

func testEngine(t *testing.T) *recommend.Engine {
	t.Helper()
	items := []catalog.Item{
		{ID: "620", Name: "Portal 2", Features: "puzzle first-person co-op", Positive: 300, Negative: 5, Price: 9.99},
		{ID: "400", Name: "Portal", Features: "puzzle first-person", Positive: 150, Negative: 4, Price: 9.99},
		{ID: "2600", Name: "Doom", Features: "action shooter first-person", Positive: 200, Negative: 20, Price: 4.99},
		{ID: "4130", Name: "Stardew Valley", Features: "farming simulation rpg", Positive: 500, Negative: 10, Price: 14.99},
		{ID: "570", Name: "Dota 2", Features: "moba strategy", Positive: 900, Negative: 200, Price: 0},
	}
	engine, err := recommend.New(items, recommend.DefaultConfig())
	if err != nil {
		t.Fatalf("recommend.New() error = %v", err)
	}
	return engine
}

func TestHandleRecommend(t *testing.T) {
	srv := httptest.NewServer(New(testEngine(t), Config{DefaultTopN: 2}).Handler())
	defer srv.Close()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
		wantMatch  string
		wantError  string
	}{
		{"exact match", "?q=Portal", http.StatusOK, 2, "Portal", ""},
		{"explicit count", "?q=portal&n=4", http.StatusOK, 4, "Portal", ""},
		{"substring match", "?q=stardew", http.StatusOK, 2, "Stardew Valley", ""},
		{"missing query", "", http.StatusBadRequest, 0, "", "missing query parameter q"},
		{"blank query", "?q=%20%20", http.StatusBadRequest, 0, "", "missing query parameter q"},
		{"bad count", "?q=doom&n=ten", http.StatusBadRequest, 0, "", "n must be"},
		{"count too large", "?q=doom&n=1000", http.StatusBadRequest, 0, "", "n must be"},
		{"zero count", "?q=doom&n=0", http.StatusBadRequest, 0, "", "n must be"},
		{"unknown game", "?q=Nonexistent+Game+XYZ", http.StatusNotFound, 0, "", "could not find"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/recommend" + tt.query)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("failed to read body: %v", err)
			}

			if tt.wantError != "" {
				var errResp errorResponse
				if err := json.Unmarshal(body, &errResp); err != nil {
					t.Fatalf("invalid error body %q: %v", body, err)
				}
				if !strings.Contains(errResp.Error, tt.wantError) {
					t.Errorf("error = %q, want it to contain %q", errResp.Error, tt.wantError)
				}
				return
			}

			var result app.Result
			if err := json.Unmarshal(body, &result); err != nil {
				t.Fatalf("invalid body %q: %v", body, err)
			}
			if result.Match != tt.wantMatch {
				t.Errorf("match = %q, want %q", result.Match, tt.wantMatch)
			}
			if len(result.Recommendations) != tt.wantCount {
				t.Errorf("recommendations = %d, want %d", len(result.Recommendations), tt.wantCount)
			}
			for _, rec := range result.Recommendations {
				if rec.Name == result.Match {
					t.Errorf("query game %q recommended to itself", rec.Name)
				}
			}
		})
	}
}

func TestHandleRecommendNotReady(t *testing.T) {
	srv := httptest.NewServer(New(&recommend.Engine{}, Config{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/recommend?q=portal")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("healthz status = %d, want 503", health.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New(testEngine(t), Config{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		State string `json:"state"`
		Items int    `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.State != "Ready" || body.Items != 5 {
		t.Errorf("healthz = %d %+v", resp.StatusCode, body)
	}
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(New(testEngine(t), Config{}).Handler())
	defer srv.Close()

	for _, q := range []string{"portal", "portal", "zzz-missing"} {
		resp, err := http.Get(srv.URL + "/recommend?q=" + q)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	tests := []string{
		`playnext_recommend_requests_total{outcome="ok"} 2`,
		`playnext_recommend_requests_total{outcome="not_found"} 1`,
		`playnext_catalog_items 5`,
		`playnext_recommend_duration_seconds_count{outcome="ok"} 2`,
	}
	for _, want := range tests {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(New(testEngine(t), Config{RateLimit: 2}).Handler())
	defer srv.Close()

	var statuses []int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/recommend?q=doom")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("first requests = %v, want 200s", statuses[:2])
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", statuses[2])
	}

	// health checks are not rate limited
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	srv := httptest.NewServer(New(testEngine(t), Config{CORSOrigins: []string{"https://example.com"}}).Handler())
	defer srv.Close()

	tests := []struct {
		origin string
		want   string
	}{
		{"https://example.com", "https://example.com"},
		{"https://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/recommend?q=doom", nil)
			if err != nil {
				t.Fatalf("NewRequest() error = %v", err)
			}
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			resp.Body.Close()
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListenAndServeShutsDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	s := New(testEngine(t), Config{Addr: addr, ReadTimeout: time.Second, WriteTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancellation")
	}
}
