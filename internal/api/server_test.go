package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/factions/internal/engine"
	"github.com/talgya/factions/internal/metrics"
	"github.com/talgya/factions/internal/persistence"
	"github.com/talgya/factions/internal/policy"
	"github.com/talgya/factions/internal/social"
)

const adminKey = "test-key"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := policy.New(policy.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	profiles := social.NewProfiles(social.SeedProfiles()...)
	require.NoError(t, social.Register(dir, profiles, 42))
	sim := engine.NewSimulation(dir, profiles)
	t.Cleanup(sim.Close)
	_, err := social.Seed(dir, social.SeedProfiles(), social.SeedRelations())
	require.NoError(t, err)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &Server{
		Sim:      sim,
		Eng:      engine.NewEngine(),
		DB:       db,
		Metrics:  metrics.NewCollector(dir),
		AdminKey: adminKey,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, body string, auth bool) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if auth {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "factionsim", got["name"])
	assert.Equal(t, 5.0, got["factions"])

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/status", "", true)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestFactions(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/factions", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Count    int      `json:"count"`
		Factions []string `json:"factions"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 5, list.Count)
	assert.Equal(t, "The Crown", list.Factions[0])

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":"Sea Lords"}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":"Sea Lords"}`, true)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":"Sea Lords"}`, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":""}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"title":"x"}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminDisabled(t *testing.T) {
	s, ts := newTestServer(t)
	s.AdminKey = ""
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":"X"}`, true)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPolicy_GetAndSave(t *testing.T) {
	_, ts := newTestServer(t)
	base := ts.URL + "/api/v1/policy/"

	resp, body := do(t, http.MethodGet, base+"attitude?a=The+Crown&b=Iron+Brotherhood", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Kind  string          `json:"kind"`
		Value social.Attitude `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "one-way", got.Kind)
	assert.Equal(t, 30.0, got.Value.Score)

	resp, _ = do(t, http.MethodPost, base+"war?a=The+Crown&b=Ashen+Path", `{"at_war":true,"since_tick":7}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Two-way: either order reads the same value.
	resp, body = do(t, http.MethodGet, base+"war?a=Ashen+Path&b=The+Crown", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var war struct {
		Value social.War `json:"value"`
	}
	require.NoError(t, json.Unmarshal(body, &war))
	assert.True(t, war.Value.AtWar)
	assert.Equal(t, uint64(7), war.Value.SinceTick)
}

func TestPolicy_Errors(t *testing.T) {
	_, ts := newTestServer(t)
	base := ts.URL + "/api/v1/policy/"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown type", http.MethodGet, "tariffs?a=The+Crown", "", http.StatusNotFound},
		{"unknown faction", http.MethodGet, "standing?a=Nobody", "", http.StatusNotFound},
		{"missing faction", http.MethodGet, "standing", "", http.StatusBadRequest},
		{"wrong arity", http.MethodGet, "war?a=The+Crown", "", http.StatusBadRequest},
		{"self pair", http.MethodGet, "war?a=The+Crown&b=The+Crown", "", http.StatusBadRequest},
		{"bad body", http.MethodPost, "standing?a=The+Crown", `{"value":"high"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "standing?a=The+Crown", `{"rank":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, base+tt.path, tt.body, true)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestPolicies(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/policies", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Count      int `json:"count"`
		Categories []struct {
			Category string     `json:"category"`
			Types    []typeInfo `json:"types"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 6, got.Count)
	require.Len(t, got.Categories, 3)
	assert.Equal(t, "diplomacy", got.Categories[0].Category)
	assert.Equal(t, policy.TypeID("attitude"), got.Categories[0].Types[0].ID)
	assert.Equal(t, policy.TypeID("war"), got.Categories[0].Types[1].ID)
}

func TestFactionDetail(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/faction/Iron%20Brotherhood", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Internal map[string]json.RawMessage            `json:"internal"`
		Outgoing map[string]map[string]json.RawMessage `json:"outgoing"`
		Shared   map[string]map[string]json.RawMessage `json:"shared"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Contains(t, got.Internal, "tendencies")
	assert.Len(t, got.Outgoing, 4)
	assert.Contains(t, got.Shared["The Crown"], "war")

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/faction/Nobody", "", false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsAndSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	require.NoError(t, s.Sim.CreateFaction("Sea Lords"))
	require.NoError(t, s.Sim.Dir.SaveTwoWay(social.TypeWar, "Sea Lords", "The Crown", &social.War{AtWar: true}))

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/events?category=war", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []engine.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "War breaks out between Sea Lords and The Crown", events[0].Description)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/snapshot", "", true)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/snapshot", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/events?stored=true", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &events))
	assert.Len(t, events, 2)
}

func TestRateLimit(t *testing.T) {
	s, ts := newTestServer(t)
	s.WriteLimit.maxRate = 2
	s.WriteLimit.buckets = make(map[string]*bucket)

	for i, name := range []string{"X", "Y"} {
		resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":"`+name+`"}`, true)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "request %d", i)
	}
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/factions", `{"name":"Z"}`, true)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Reads are never limited.
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/factions", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
	assert.Equal(t, 60, rl.RetryAfter("1.2.3.4"))

	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, 60, rl.RetryAfter("1.2.3.4"), "partial seconds round up")
	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, 59, rl.RetryAfter("1.2.3.4"))
	now = time.Unix(0, 0)

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	s.CORSOrigins = []string{"https://factions.example"}
	h := s.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://factions.example")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://factions.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	do(t, http.MethodGet, ts.URL+"/api/v1/status", "", false)

	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "factions_factions 5")
	assert.Contains(t, string(body), `factions_api_requests_total{code="200",route="/api/v1/status"} 1`)
}

func TestStream(t *testing.T) {
	s, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, s.Sim.CreateFaction("Sea Lords"))

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		defer close(lines)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, "Sea Lords is founded") {
				return
			}
		case <-deadline:
			t.Fatal("founding event not streamed")
		}
	}
}

func TestCheckBearerToken(t *testing.T) {
	s := &Server{AdminKey: adminKey}
	tests := []struct {
		name, header string
		want         bool
	}{
		{"valid", "Bearer " + adminKey, true},
		{"wrong key", "Bearer other-key", false},
		{"key prefix", "Bearer " + adminKey[:4], false},
		{"missing scheme", adminKey, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/snapshot", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, s.checkBearerToken(r))
		})
	}
}
