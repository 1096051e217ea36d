package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"flight-map-dashboard/internal/detail"
	"flight-map-dashboard/internal/fetcher"
	"flight-map-dashboard/internal/metrics"
	"flight-map-dashboard/internal/photo"
	"flight-map-dashboard/internal/refresh"
	"flight-map-dashboard/internal/registry"
	"flight-map-dashboard/internal/throttle"
)

const statesBody = `{"time": 1700000000, "states": [
	["3c6444", "DLH9LF  ", "Germany", 1700000000, 1700000000, 8.56, 50.03, 10363.2, false, 231.4, 87.5, 0, null, 10660.4, "1000", false, 0],
	["4b1814", "EDW22   ", "Switzerland", 1700000000, 1700000000, 8.55, 47.45, 3000, false, 150, 270, -5, null, 3100, "4012", false, 0],
	"garbage"
]}`

type countingWarmer struct{ calls, started atomic.Int64 }

func (c *countingWarmer) Trigger() bool {
	c.calls.Add(1)
	return c.started.CompareAndSwap(0, 1)
}

type stubPhotos map[string]string

func (s stubPhotos) PhotoURL(_ context.Context, icao24 string) (string, error) {
	if icao24 == "broken" {
		return "", errors.New("upstream down")
	}
	url, ok := s[icao24]
	if !ok {
		return "", photo.ErrNoPhoto
	}
	return url, nil
}

type testEnv struct {
	server   *httptest.Server
	upstream *httptest.Server
	warmer   *countingWarmer
	metrics  *metrics.Metrics
	limiter  *throttle.RateLimiter
	status   atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		warmer:  &countingWarmer{},
		metrics: metrics.NewMetrics(),
		limiter: throttle.NewRateLimiter(100, 10),
	}
	env.status.Store(http.StatusOK)

	env.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(env.status.Load())
		w.WriteHeader(code)
		if code == http.StatusOK {
			w.Write([]byte(statesBody))
		}
	}))
	t.Cleanup(env.upstream.Close)

	client := fetcher.NewOpenSkyClient(fetcher.Options{BaseURL: env.upstream.URL, Timeout: time.Second}, env.limiter, nil, env.metrics)
	reg := registry.New()
	reg.Put("3c6444", registry.Metadata{Operator: "Lufthansa", Manufacturer: "Airbus", Model: "A319 112"})

	srv := NewServer(Deps{
		Trigger:  refresh.NewTrigger(client, time.Hour, time.Second, nil, env.metrics),
		Throttle: env.limiter,
		Detail:   detail.NewLookup(""),
		Registry: reg,
		Photos:   stubPhotos{"3c6444": "https://cdn.example.com/3c6444.jpg"},
		Warmup:   env.warmer,
		Metrics:  env.metrics,
	})
	env.server = httptest.NewServer(srv.Routes())
	t.Cleanup(env.server.Close)
	return env
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]interface{}
	if code := getJSON(t, env.server.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", body["status"])
	}
}

func TestMetricsIncludesThrottle(t *testing.T) {
	env := newTestEnv(t)

	getJSON(t, env.server.URL+"/api/features?lamin=45&lomin=5&lamax=55&lomax=15", nil)

	var body struct {
		APIRequests int64           `json:"api_requests"`
		Refreshes   int64           `json:"refreshes"`
		Throttle    *throttle.Stats `json:"throttle"`
	}
	if code := getJSON(t, env.server.URL+"/metrics", &body); code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body.APIRequests != 1 || body.Refreshes != 1 {
		t.Errorf("Expected 1 request and 1 refresh, got %d / %d", body.APIRequests, body.Refreshes)
	}
	if body.Throttle == nil {
		t.Fatal("Expected throttle block in metrics")
	}
	if body.Throttle.Allowed != 1 || body.Throttle.PerSecond != 100 || body.Throttle.Burst != 10 {
		t.Errorf("Unexpected throttle stats %+v", body.Throttle)
	}
}

func TestIndexTriggersWarmupOnce(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		resp, err := http.Get(env.server.URL + "/")
		if err != nil {
			t.Fatalf("GET / failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
			t.Errorf("Expected HTML, got %s", resp.Header.Get("Content-Type"))
		}
	}

	if env.warmer.calls.Load() != 3 {
		t.Errorf("Expected warm-up asked on every render, got %d", env.warmer.calls.Load())
	}
	if env.warmer.started.Load() != 1 {
		t.Errorf("Expected warm-up started once, got %d", env.warmer.started.Load())
	}

	resp, err := http.Get(env.server.URL + "/static/app.js")
	if err != nil {
		t.Fatalf("GET app.js failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected static asset, got %d", resp.StatusCode)
	}
}

func TestFeatures(t *testing.T) {
	env := newTestEnv(t)
	url := env.server.URL + "/api/features?lamin=45&lomin=5&lamax=55&lomax=15"

	t.Run("Returns frame", func(t *testing.T) {
		var frame refresh.Frame
		if code := getJSON(t, url, &frame); code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", code)
		}
		if frame.Status != refresh.StatusOK {
			t.Errorf("Expected ok, got %s", frame.Status)
		}
		if len(frame.Collection.Features) != 2 {
			t.Errorf("Expected 2 features, got %d", len(frame.Collection.Features))
		}
		if frame.Dropped != 1 {
			t.Errorf("Expected 1 dropped row, got %d", frame.Dropped)
		}
	})

	t.Run("Bad bounds", func(t *testing.T) {
		code := getJSON(t, env.server.URL+"/api/features?lamin=north", nil)
		if code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", code)
		}
	})

	t.Run("Upstream failure", func(t *testing.T) {
		env.status.Store(http.StatusServiceUnavailable)
		defer env.status.Store(http.StatusOK)

		var frame refresh.Frame
		if code := getJSON(t, url, &frame); code != http.StatusBadGateway {
			t.Fatalf("Expected 502, got %d", code)
		}
		if frame.Status != refresh.StatusUpstreamError {
			t.Errorf("Expected upstream_error, got %s", frame.Status)
		}
		if len(frame.Collection.Features) != 0 {
			t.Errorf("Expected no features, got %d", len(frame.Collection.Features))
		}
	})
}

func postDetail(t *testing.T, url, accept, body string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url+"/api/detail", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/detail failed: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.String()
}

func TestDetail(t *testing.T) {
	env := newTestEnv(t)
	feature := `{"type":"Feature","properties":{"icao24":"3c6444","callsign":"DLH9LF","true_track":"n/a","on_ground":false,"velocity":231.4,"vertical_rate":0,"baro_altitude":10363.2,"squawk":"1000"}}`

	t.Run("JSON", func(t *testing.T) {
		resp, body := postDetail(t, env.server.URL, "application/json", feature)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		var d detail.Detail
		json.Unmarshal([]byte(body), &d)
		if !d.Open || d.Callsign != "DLH9LF" {
			t.Errorf("Unexpected detail %+v", d)
		}
		if d.Heading != detail.Placeholder {
			t.Errorf("Expected placeholder heading, got %q", d.Heading)
		}
	})

	t.Run("HTML modal", func(t *testing.T) {
		resp, body := postDetail(t, env.server.URL, "text/html", feature)
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
			t.Errorf("Expected HTML, got %s", resp.Header.Get("Content-Type"))
		}
		if !strings.Contains(body, "DLH9LF") || !strings.Contains(body, "flightradar24.com/DLH9LF") {
			t.Errorf("Unexpected modal %q", body)
		}
	})

	t.Run("Nothing clicked", func(t *testing.T) {
		resp, body := postDetail(t, env.server.URL, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		var d detail.Detail
		json.Unmarshal([]byte(body), &d)
		if d.Open {
			t.Error("Expected closed detail")
		}
	})

	t.Run("Not an object", func(t *testing.T) {
		resp, _ := postDetail(t, env.server.URL, "", `[1, 2]`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t)

	var hit map[string]string
	getJSON(t, env.server.URL+"/api/aircraft/3C6444", &hit)
	if hit["operator"] != "Lufthansa" || hit["model"] != "A319 112" {
		t.Errorf("Unexpected metadata %v", hit)
	}

	var miss map[string]string
	if code := getJSON(t, env.server.URL+"/api/aircraft/ffffff", &miss); code != http.StatusOK {
		t.Fatalf("Expected 200 for unknown airframe, got %d", code)
	}
	if miss["operator"] != "" || miss["manufacturer"] != "" || miss["model"] != "" {
		t.Errorf("Expected empty strings, got %v", miss)
	}
}

func TestPhoto(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		icao string
		want int
	}{
		{"3c6444", http.StatusOK},
		{"ffffff", http.StatusNotFound},
		{"broken", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.icao, func(t *testing.T) {
			if code := getJSON(t, env.server.URL+"/api/aircraft/"+tt.icao+"/photo", nil); code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestWebSocketSession(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// malformed viewport messages are ignored, the session stays up
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"bounds": [[1, 2]]}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"bounds": [[45, 5], [55, 15]]}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame refresh.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Expected a frame, got: %v", err)
	}
	if frame.Status != refresh.StatusOK {
		t.Errorf("Expected ok, got %s", frame.Status)
	}
	if len(frame.Collection.Features) != 2 {
		t.Errorf("Expected 2 features, got %d", len(frame.Collection.Features))
	}
	if frame.Bounds.South != 45 || frame.Bounds.East != 15 {
		t.Errorf("Expected frame for sent bounds, got %v", frame.Bounds)
	}
	if env.metrics.GetActiveSessions() != 1 {
		t.Errorf("Expected 1 active session, got %d", env.metrics.GetActiveSessions())
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.metrics.GetActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected session to close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := NewServer(Deps{AllowedOrigins: []string{"https://map.example.com"}})
	server := httptest.NewServer(srv.Routes())
	defer server.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", header)
	if err == nil {
		t.Fatal("Expected handshake to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}
}
