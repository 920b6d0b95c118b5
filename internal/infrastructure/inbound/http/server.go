package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/pkg/mocker"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

const maxBodySize = 1 << 20 // 1 MB

// Server forwards every request through the interceptor's transport and
// exposes the admin API under /__admin.
type Server struct {
	router      *chi.Mux
	interceptor *mocker.Interceptor
	upstream    *url.URL
	logger      ports.Logger
}

// NewServer creates a new Server. Without an upstream, requests keep the
// host they were sent to.
func NewServer(interceptor *mocker.Interceptor, upstream *url.URL, logger ports.Logger) *Server {
	s := &Server{
		interceptor: interceptor,
		upstream:    upstream,
		logger:      logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/__admin", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/mode", s.handleGetMode)
		r.Put("/mode", s.handleSetMode)
		r.Get("/trace", s.handleGetTrace)
		r.Post("/cache/reset", s.handleResetCache)
	})

	proxy := &httputil.ReverseProxy{
		Rewrite:      s.rewrite,
		Transport:    s.interceptor.Transport(),
		ErrorHandler: s.handleProxyError,
	}
	r.Handle("/*", proxy)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) rewrite(pr *httputil.ProxyRequest) {
	if s.upstream != nil {
		pr.SetURL(s.upstream)
		pr.SetXForwarded()
		return
	}
	pr.Out.URL.Scheme = "http"
	pr.Out.URL.Host = pr.In.Host
}

func (s *Server) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, err)
}

// classify maps interception errors to a status and a stable error code.
func classify(err error) (int, string) {
	var (
		noMatch   *scenario.NoMatchError
		parse     *scenario.ParseError
		asset     *scenario.BodyAssetError
		recording *scenario.RecordingError
		simulated *scenario.SimulatedError
	)
	switch {
	case errors.As(err, &noMatch):
		return http.StatusNotFound, "no_match"
	case errors.As(err, &parse):
		return http.StatusInternalServerError, "scenario_parse_error"
	case errors.As(err, &asset):
		return http.StatusInternalServerError, "body_asset_error"
	case errors.As(err, &recording):
		return http.StatusInternalServerError, "recording_error"
	case errors.As(err, &simulated):
		return http.StatusBadGateway, "simulated_network_error"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type modeBody struct {
	Mode string `json:"mode"`
}

func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modeBody{Mode: s.interceptor.Mode().String()})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_failed", err)
		return
	}
	var body modeBody
	if err := json.Unmarshal(data, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err)
		return
	}
	m, err := mocker.ParseMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err)
		return
	}
	if err := s.interceptor.SetMode(m); err != nil {
		if errors.Is(err, mocker.ErrRecorderNotConfigured) {
			writeError(w, http.StatusConflict, "recorder_not_configured", err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_mode", err)
		return
	}
	writeJSON(w, http.StatusOK, modeBody{Mode: m.String()})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := 10
	if lastParam := r.URL.Query().Get("last"); lastParam != "" {
		if parsed, err := strconv.Atoi(lastParam); err == nil && parsed > 0 {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.interceptor.Trace(n))
}

func (s *Server) handleResetCache(w http.ResponseWriter, _ *http.Request) {
	s.interceptor.ResetCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "cache reset"})
}

type errorBody struct {
	Error      string               `json:"error"`
	Message    string               `json:"message"`
	Rejections []scenario.Rejection `json:"rejections,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	body := errorBody{Error: code, Message: err.Error()}
	var noMatch *scenario.NoMatchError
	if errors.As(err, &noMatch) {
		body.Rejections = noMatch.Rejections
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
