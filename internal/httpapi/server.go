package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/domain"
	"github.com/hamed0406/uptimealert/internal/httpapi/middleware"
	"github.com/hamed0406/uptimealert/internal/metrics"
	"github.com/hamed0406/uptimealert/internal/repo"
	"github.com/hamed0406/uptimealert/internal/scheduler"
)

type Server struct {
	Logger *zap.Logger
	Store  repo.Store
	// Executor, when set, runs an immediate check for newly created monitors.
	Executor *scheduler.Executor
}

func NewServer(l *zap.Logger, store repo.Store, exec *scheduler.Executor) *Server {
	return &Server{Logger: l, Store: store, Executor: exec}
}

// Limits configures per-IP rate limiting for the public and admin groups.
type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

func (s *Server) Router(keys middleware.Keys, allowedOrigins []string, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(lim.PublicRPM, lim.PublicBurst))
			r.Use(middleware.RequireAny(keys))
			r.Get("/monitors", s.handleListMonitors)
			r.Get("/monitors/{id}", s.handleGetMonitor)
			r.Get("/monitors/{id}/results", s.handleResults)
			r.Get("/alerts", s.handleAlerts)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(lim.AdminRPM, lim.AdminBurst))
			r.Use(middleware.RequireAdmin(keys))
			r.Post("/monitors", s.handleCreateMonitor)
			r.Put("/monitors/{id}/recipients", s.handleSetRecipients)
			r.Delete("/monitors/{id}", s.handleDeleteMonitor)
		})
	})

	return r
}

// monitorView exposes recipients as a list rather than the stored CSV.
type monitorView struct {
	ID         domain.MonitorID `json:"id"`
	Name       string           `json:"name"`
	Target     string           `json:"target"`
	Recipients []string         `json:"recipients"`
}

func viewOf(m domain.Monitor) monitorView {
	rs := m.RecipientList()
	if rs == nil {
		rs = []string{}
	}
	return monitorView{ID: m.ID, Name: m.Name, Target: m.Target, Recipients: rs}
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Store.ListMonitors(r.Context())
	if err != nil {
		s.internalError(w, "list_monitors", err)
		return
	}
	out := make([]monitorView, 0, len(ms))
	for _, m := range ms {
		out = append(out, viewOf(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMonitor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*m))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := repo.RecentResultsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}
	id := domain.MonitorID(chi.URLParam(r, "id"))
	rs, err := s.Store.RecentResults(r.Context(), id)
	if err != nil {
		s.internalError(w, "recent_results", err)
		return
	}
	if len(rs) > limit {
		rs = rs[:limit]
	}
	if rs == nil {
		rs = []domain.CheckResult{}
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(strings.TrimSpace(r.URL.Query().Get("monitor_id")))
	as, err := s.Store.FetchAlerts(r.Context(), id)
	if err != nil {
		s.internalError(w, "fetch_alerts", err)
		return
	}
	if as == nil {
		as = []domain.Alert{}
	}
	writeJSON(w, http.StatusOK, as)
}

type createPayload struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Target     string   `json:"target"`
	Recipients []string `json:"recipients"`
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if !isValidHTTPURL(p.Target) {
		writeError(w, http.StatusBadRequest, "target must be an http(s) URL")
		return
	}
	target := normalizeHTTPURL(p.Target)
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = p.ID
	}
	recipients, err := domain.NormalizeRecipients(p.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	id := domain.MonitorID(p.ID)
	if err := s.Store.UpsertMonitor(ctx, id, name, target); err != nil {
		s.internalError(w, "upsert_monitor", err)
		return
	}
	if len(recipients) > 0 {
		if err := s.Store.SetRecipients(ctx, id, domain.JoinRecipients(recipients)); err != nil {
			s.internalError(w, "set_recipients", err)
			return
		}
	}

	resp := map[string]any{}
	if s.Executor != nil {
		resultID, err := s.Executor.RunOnce(ctx, id, target)
		if err != nil {
			s.Logger.Warn("api_initial_check_persist_error", zap.String("monitor_id", p.ID), zap.Error(err))
		} else {
			resp["result_id"] = resultID
		}
	}

	m, err := s.Store.GetMonitor(ctx, id)
	if err != nil {
		s.internalError(w, "get_monitor", err)
		return
	}
	resp["monitor"] = viewOf(*m)

	s.Logger.Info("api_monitor_saved",
		zap.String("monitor_id", p.ID),
		zap.String("target", target),
		zap.Int("recipients", len(m.RecipientList())),
	)
	writeJSON(w, http.StatusCreated, resp)
}

type recipientsPayload struct {
	Recipients []string `json:"recipients"`
}

func (s *Server) handleSetRecipients(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMonitor(w, r)
	if !ok {
		return
	}
	var p recipientsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	recipients, err := domain.NormalizeRecipients(p.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Store.SetRecipients(r.Context(), m.ID, domain.JoinRecipients(recipients)); err != nil {
		s.internalError(w, "set_recipients", err)
		return
	}
	m.Recipients = domain.JoinRecipients(recipients)
	writeJSON(w, http.StatusOK, viewOf(*m))
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	n, err := s.Store.DeleteMonitor(r.Context(), id)
	if err != nil {
		s.internalError(w, "delete_monitor", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	s.Logger.Info("api_monitor_deleted", zap.String("monitor_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadMonitor(w http.ResponseWriter, r *http.Request) (*domain.Monitor, bool) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	m, err := s.Store.GetMonitor(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "get_monitor", err)
		return nil, false
	}
	return m, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.Logger.Error("api_"+op+"_error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Hostname() != ""
}

// normalizeHTTPURL lower-cases scheme and host, drops default ports and a
// bare trailing slash.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
