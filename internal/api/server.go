// Package api provides the HTTP API for the faction directory.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/factions/internal/engine"
	"github.com/talgya/factions/internal/metrics"
	"github.com/talgya/factions/internal/persistence"
	"github.com/talgya/factions/internal/policy"
)

const maxSSEConns = 8

// Server serves the directory over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB    // nil disables snapshots and stored events
	Metrics     *metrics.Collector // nil disables /metrics
	Port        int
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.
	CORSOrigins []string

	// WriteLimit throttles POST requests per client. Defaults to 60 per minute.
	WriteLimit *RateLimiter

	// Active SSE connection count (atomic).
	sseConns int32
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	if s.WriteLimit == nil {
		s.WriteLimit = NewRateLimiter(60, time.Minute)
	}
	write := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimitMiddleware(s.WriteLimit, s.adminOnly(h))
	}

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.observe(pattern, h))
	}

	// Public endpoints (GET, read-only).
	route("/api/v1/status", s.handleStatus)
	route("/api/v1/policies", s.handlePolicies)
	route("/api/v1/events", s.handleEvents)
	route("/api/v1/faction/", s.handleFactionDetail)
	route("/api/v1/stream", s.handleStream)

	// Endpoints with an admin POST side.
	route("/api/v1/factions", write(s.handleFactions))
	route("/api/v1/policy/", write(s.handlePolicy))
	route("/api/v1/snapshot", write(s.handleSnapshot))

	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return corsMiddleware(s.CORSOrigins, mux)
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		slog.Info("HTTP API stopped")
		return nil
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	if s.Metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		s.Metrics.ObserveRequest(route, rec.code)
	}
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no FACTIONS_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	st := s.Sim.Status()
	running := false
	if s.Eng != nil {
		running = s.Eng.Running()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "factionsim",
		"tick":     st.Tick,
		"sim_time": st.SimTime,
		"running":  running,
		"factions": st.Factions,
		"wars":     st.Wars,
		"treaties": st.Treaties,
		"events":   st.Events,
		"policies": st.Policies,
		"failures": s.Sim.Dir.Hub().Failures(),
	})
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		names := s.Sim.Dir.ListFactions()
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(names),
			"factions": names,
		})

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.Sim.CreateFaction(req.Name); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name})

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleFactionDetail serves GET /api/v1/faction/{name}: the faction's
// internal policies, its one-way policies toward and from every other
// faction, and the two-way policies it shares.
func (s *Server) handleFactionDetail(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/faction/")
	dir := s.Sim.Dir
	if !dir.HasFaction(name) {
		writeError(w, http.StatusNotFound, fmt.Errorf("faction %q: %w", name, policy.ErrUnknownFaction))
		return
	}

	internal := make(map[policy.TypeID]policy.Value)
	outgoing := make(map[string]map[policy.TypeID]policy.Value)
	incoming := make(map[string]map[policy.TypeID]policy.Value)
	shared := make(map[string]map[policy.TypeID]policy.Value)
	put := func(m map[string]map[policy.TypeID]policy.Value, other string, t policy.TypeID, v policy.Value) {
		if m[other] == nil {
			m[other] = make(map[policy.TypeID]policy.Value)
		}
		m[other][t] = v
	}

	others := dir.ListFactions()
	for _, desc := range dir.Registry().Descriptors() {
		switch desc.Kind {
		case policy.Internal:
			if v, err := dir.GetInternal(desc.ID, name); err == nil {
				internal[desc.ID] = v
			}
		case policy.OneWay:
			for _, o := range others {
				if o == name {
					continue
				}
				if v, err := dir.GetOneWay(desc.ID, name, o); err == nil {
					put(outgoing, o, desc.ID, v)
				}
				if v, err := dir.GetOneWay(desc.ID, o, name); err == nil {
					put(incoming, o, desc.ID, v)
				}
			}
		case policy.TwoWay:
			for _, o := range others {
				if o == name {
					continue
				}
				if v, err := dir.GetTwoWay(desc.ID, name, o); err == nil {
					put(shared, o, desc.ID, v)
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":     name,
		"internal": internal,
		"outgoing": outgoing,
		"incoming": incoming,
		"shared":   shared,
	})
}

type typeInfo struct {
	ID          policy.TypeID `json:"id"`
	Kind        string        `json:"kind"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
}

// handlePolicies lists registered policy types grouped by category, both
// sorted.
func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	reg := s.Sim.Dir.Registry()
	type group struct {
		Category string     `json:"category"`
		Types    []typeInfo `json:"types"`
	}
	groups := []group{}
	for _, cat := range reg.Categories() {
		g := group{Category: cat}
		for _, d := range reg.InCategory(cat) {
			g.Types = append(g.Types, typeInfo{
				ID:          d.ID,
				Kind:        d.Kind.String(),
				Name:        d.Name,
				Description: d.Description,
			})
		}
		groups = append(groups, g)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      reg.Len(),
		"categories": groups,
	})
}

// handlePolicy serves /api/v1/policy/{type}?a=X[&b=Y]. GET reads the value,
// POST replaces it with the JSON body.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}
	t := policy.TypeID(strings.TrimPrefix(r.URL.Path, "/api/v1/policy/"))
	desc, err := s.Sim.Dir.Registry().Lookup(t)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	q := r.URL.Query()
	factions := []string{q.Get("a")}
	if factions[0] == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing faction parameter a"))
		return
	}
	if b := q.Get("b"); b != "" {
		factions = append(factions, b)
	}

	if r.Method == http.MethodPost {
		v := desc.New()
		if err := decodeBody(w, r, v); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.Sim.Dir.Save(t, v, factions...); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}

	v, err := s.Sim.Dir.Get(t, factions...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":     t,
		"kind":     desc.Kind.String(),
		"factions": factions,
		"value":    v,
	})
}

// handleEvents returns recent events, oldest first. ?category= filters;
// ?stored=true reads the database log instead of memory (newest first).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var events []engine.Event
	if r.URL.Query().Get("stored") == "true" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		var err error
		events, err = s.DB.RecentEvents(limit)
		if err != nil {
			slog.Error("stored events query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
	} else {
		events = s.Sim.Events(0)
	}

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []engine.Event{}
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []engine.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	// Catch-up: the last 50 events.
	for _, e := range s.Sim.Events(50) {
		writeSSEEvent(w, e)
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Category, data)
}

// statusFor maps directory errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, policy.ErrUnknownFaction), errors.Is(err, policy.ErrUnknownPolicyType):
		return http.StatusNotFound
	case errors.Is(err, policy.ErrDuplicateFaction), errors.Is(err, policy.ErrDuplicatePolicyType):
		return http.StatusConflict
	case errors.Is(err, policy.ErrKindMismatch), errors.Is(err, policy.ErrSelfPair),
		errors.Is(err, policy.ErrInvalidFaction), errors.Is(err, policy.ErrValueType),
		errors.Is(err, policy.ErrInvalidDescriptor):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	methodNotAllowed(w, methods...)
	return false
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
