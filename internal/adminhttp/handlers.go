// Package adminhttp exposes CoolCache's operator HTTP surface: a liveness
// probe plus bearer-token-gated, rate-limited introspection and BGSAVE
// trigger endpoints, separate from the RESP port clients and replicas
// speak on. The one mutating endpoint sits behind a bearer-token check
// and a token-bucket rate limiter; everything else is read-only JSON.
package adminhttp

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"coolcache/internal/authtoken"
	"coolcache/internal/keyspace"
	"coolcache/internal/logging"
	"coolcache/internal/metrics"
	"coolcache/internal/replication"
	"coolcache/internal/snapshot"
)

// hs256Prefix marks an AdminToken configuration value as an HS256 signing
// secret rather than a static shared secret: operators who want rotating,
// expiring bearer tokens (instead of one long-lived string every caller
// shares) set `--admin-token hs256:<secret>` and mint short-lived HS256
// tokens against that secret out of band.
const hs256Prefix = "hs256:"

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures a HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Store       *keyspace.Store
	Snapshot    *snapshot.Manager // nil disables /admin/bgsave
	Leader      *replication.Leader
	Metrics     *metrics.Metrics // nil disables /metrics and /admin/live
	StartedAt   time.Time
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles CoolCache's operator HTTP handlers.
type HandlerSet struct {
	logger      *logging.Logger
	store       *keyspace.Store
	snap        *snapshot.Manager
	leader      *replication.Leader
	metrics     *metrics.Metrics
	startedAt   time.Time
	adminToken  string
	verifier    *authtoken.Verifier // non-nil when AdminToken configures HS256 tokens instead of a static secret
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options. A token
// of the form "hs256:<secret>" switches authorisation from a static shared
// secret to signed, expiring HS256 bearer tokens (internal/authtoken);
// anything else is compared as a plain shared secret.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	adminToken := strings.TrimSpace(opts.AdminToken)
	var verifier *authtoken.Verifier
	if secret, ok := strings.CutPrefix(adminToken, hs256Prefix); ok {
		v, err := authtoken.NewVerifier(secret, 30*time.Second)
		if err != nil {
			logger.Warn("admin token configured as hs256 but secret is invalid; falling back to static comparison", logging.Error(err))
		} else {
			verifier = v
			verifier.WithClock(now)
		}
	}
	return &HandlerSet{
		logger:      logger,
		store:       opts.Store,
		snap:        opts.Snapshot,
		leader:      opts.Leader,
		metrics:     opts.Metrics,
		startedAt:   opts.StartedAt,
		adminToken:  adminToken,
		verifier:    verifier,
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches every handler to mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.HealthzHandler())
	mux.HandleFunc("/admin/info", h.InfoHandler())
	mux.HandleFunc("/admin/stats", h.StatsHandler())
	mux.HandleFunc("/admin/bgsave", h.BGSaveHandler())
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
		mux.HandleFunc("/admin/live", h.LiveStatsHandler())
	}
}

// HealthzHandler reports that the process is alive and accepting connections.
func (h *HandlerSet) HealthzHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// InfoHandler reports replication role and identity, the JSON counterpart
// to the RESP INFO command's Replication section.
func (h *HandlerSet) InfoHandler() http.HandlerFunc {
	type response struct {
		Role             string  `json:"role"`
		MasterReplID     string  `json:"master_replid,omitempty"`
		MasterReplOffset uint64  `json:"master_repl_offset,omitempty"`
		ConnectedSlaves  int     `json:"connected_slaves,omitempty"`
		UptimeSeconds    float64 `json:"uptime_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Role: "slave", UptimeSeconds: time.Since(h.startedAt).Seconds()}
		if h.leader != nil {
			resp.Role = "master"
			resp.MasterReplID = h.leader.ReplicationID()
			resp.MasterReplOffset = h.leader.Offset()
			resp.ConnectedSlaves = h.leader.ConnectedReplicas()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatsHandler reports keyspace size, persistence timestamps, and the most
// recently sampled process resources.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.statsSnapshot())
	}
}

type statsResponse struct {
	Keys          int     `json:"keys"`
	Changes       int64   `json:"changes_since_save"`
	LastSave      int64   `json:"lastsave"`
	Replicas      int     `json:"connected_replicas"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	HeapBytes     uint64  `json:"heap_bytes,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	Goroutines    int     `json:"goroutines,omitempty"`
}

func (h *HandlerSet) statsSnapshot() statsResponse {
	resp := statsResponse{UptimeSeconds: time.Since(h.startedAt).Seconds()}
	if h.store != nil {
		resp.Keys = len(h.store.Keys("*"))
		resp.Changes = h.store.Changes()
	}
	if h.snap != nil {
		resp.LastSave = h.snap.LastSave()
	}
	if h.leader != nil {
		resp.Replicas = h.leader.ConnectedReplicas()
	}
	if h.metrics != nil {
		sys := h.metrics.System()
		resp.HeapBytes = sys.HeapAllocBytes
		resp.CPUPercent = sys.CPUPercent
		resp.Goroutines = sys.Goroutines
	}
	return resp
}

// BGSaveHandler authorises and triggers a background save, the HTTP
// equivalent of the RESP BGSAVE command for operators who would rather
// script against the admin surface than open a RESP connection.
func (h *HandlerSet) BGSaveHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "bgsave"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("bgsave denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("bgsave denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("bgsave denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.snap == nil {
			reqLogger.Warn("bgsave denied: persistence disabled")
			http.Error(w, "persistence is not enabled", http.StatusServiceUnavailable)
			return
		}
		h.snap.BGSave()
		reqLogger.Info("bgsave triggered via admin HTTP")
		writeJSON(w, http.StatusAccepted, response{Status: "Background saving started"})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	if h.verifier != nil {
		_, err := h.verifier.Verify(token)
		return err == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
