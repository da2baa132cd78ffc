package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/diagnose"
	"github.com/Bldg-7/authdoctor/internal/oauth"
	"github.com/Bldg-7/authdoctor/internal/shared"
	"github.com/Bldg-7/authdoctor/internal/storage"
)

// API is the HTTP surface over the diagnostic engine.
type API struct {
	engine    *diagnose.Engine
	cache     *diagnose.Cache
	refresher *oauth.Refresher
	monitor   *diagnose.Monitor
	history   *storage.HistoryStore
	hub       *Hub
	authToken string
	logger    *zap.Logger
	metrics   *diagnose.Metrics
}

// NewAPI builds the HTTP API. cache, monitor, history, and hub may be nil;
// the corresponding endpoints degrade accordingly.
func NewAPI(
	engine *diagnose.Engine,
	cache *diagnose.Cache,
	refresher *oauth.Refresher,
	monitor *diagnose.Monitor,
	history *storage.HistoryStore,
	hub *Hub,
	authToken string,
	logger *zap.Logger,
) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		engine:    engine,
		cache:     cache,
		refresher: refresher,
		monitor:   monitor,
		history:   history,
		hub:       hub,
		authToken: authToken,
		logger:    logger,
		metrics:   diagnose.GetMetrics(),
	}
}

// Handler returns the route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleLiveness)
	mux.HandleFunc("GET /readyz", a.handleReadiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/v1/diagnose", a.requireAuth(http.HandlerFunc(a.handleDiagnose)))
	mux.Handle("POST /api/v1/token/refresh", a.requireAuth(http.HandlerFunc(a.handleRefresh)))
	mux.Handle("GET /api/v1/report", a.requireAuth(http.HandlerFunc(a.handleReport)))
	mux.Handle("GET /api/v1/export", a.requireAuth(http.HandlerFunc(a.handleExport)))
	mux.Handle("GET /api/v1/history", a.requireAuth(http.HandlerFunc(a.handleHistory)))
	if a.hub != nil {
		mux.Handle("GET /ws/health", a.requireAuth(http.HandlerFunc(a.hub.ServeWS)))
	}

	return mux
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if a.authToken == "" || token != a.authToken {
			writeError(w, http.StatusUnauthorized, "unauthorized", "AUTH_REQUIRED")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type diagnoseRequest struct {
	RawError    string                `json:"raw_error,omitempty"`
	StatusCode  int                   `json:"status_code,omitempty"`
	AuthState   *shared.AuthState     `json:"auth_state"`
	Permissions *shared.PermissionSet `json:"permissions,omitempty"`
}

func (a *API) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req diagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
		return
	}

	key := diagnoseCacheKey(req)
	if a.cache != nil {
		if cached := a.cache.Get(key); cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	var rawErr error
	if req.StatusCode != 0 {
		rawErr = &shared.StatusError{Code: req.StatusCode, Message: req.RawError}
	} else if req.RawError != "" {
		rawErr = errors.New(req.RawError)
	}

	result := a.engine.Diagnose(r.Context(), rawErr, req.AuthState, req.Permissions)

	if a.cache != nil {
		a.cache.Put(key, result)
	}
	if a.history != nil {
		if err := a.history.Record(result); err != nil {
			a.logger.Warn("failed to record diagnosis", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cfg := shared.DefaultTokenRefreshConfig()
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
			return
		}
	}

	result := a.refresher.AttemptRefresh(r.Context(), cfg)
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	a.metrics.RecordRefresh(outcome)

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	result := a.latestResult(r)
	if result == nil {
		writeError(w, http.StatusNotFound, "no diagnosis available yet", "NOT_FOUND")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(diagnose.FormatReport(*result)))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	result := a.latestResult(r)
	if result == nil {
		writeError(w, http.StatusNotFound, "no diagnosis available yet", "NOT_FOUND")
		return
	}

	data, err := diagnose.ExportDiagnosticData(*result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "EXPORT_FAILED")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(data))
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, "history not configured", "NOT_FOUND")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "BAD_REQUEST")
			return
		}
		limit = parsed
	}

	entries, err := a.history.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "HISTORY_FAILED")
		return
	}
	if entries == nil {
		entries = []storage.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (a *API) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if a.monitor != nil {
		if latest := a.monitor.Latest(); latest != nil && !latest.IsHealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "degraded",
				"severity": latest.Severity,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// latestResult prefers the monitor's snapshot and falls back to running a
// fresh diagnosis without any raw error.
func (a *API) latestResult(r *http.Request) *shared.DiagnosticResult {
	if a.monitor != nil {
		if latest := a.monitor.Latest(); latest != nil {
			return latest
		}
	}
	if a.engine == nil {
		return nil
	}
	result := a.engine.Diagnose(r.Context(), nil, nil, nil)
	return &result
}

// diagnoseCacheKey hashes the request so identical inputs within the TTL
// share one result.
func diagnoseCacheKey(req diagnoseRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return "diagnose:" + time.Now().String()
	}
	sum := sha256.Sum256(data)
	return "diagnose:" + hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
