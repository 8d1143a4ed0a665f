package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/internal/ratelimit"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	AuthBaseURL                string
	CatalogBaseURL             string
	RedisAddr                  string
	RedisPassword              string
	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	Client                     *http.Client
}

// Server fronts the auth and catalog services for the browser. Requests are
// forwarded by path prefix with bodies and status codes passed through 1:1.
type Server struct {
	authBase        string
	catalogBase     string
	client          *http.Client
	mux             *http.ServeMux
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	registerLimit := cfg.RegisterRateLimitPerMinute
	if registerLimit <= 0 {
		registerLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "nalandaa:gateway:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter, err := newLimiter("register", registerLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	s := &Server{
		authBase:        strings.TrimSuffix(cfg.AuthBaseURL, "/"),
		catalogBase:     strings.TrimSuffix(cfg.CatalogBaseURL, "/"),
		client:          client,
		mux:             http.NewServeMux(),
		registerLimiter: registerLimiter,
		loginLimiter:    loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("gateway", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/auth/register", s.rateLimited(s.registerLimiter, "too many registration attempts", s.toAuth))
	s.mux.HandleFunc("/auth/login", s.rateLimited(s.loginLimiter, "too many login attempts", s.toAuth))
	s.mux.HandleFunc("/auth/", s.toAuth)
	s.mux.HandleFunc("/api/users", s.toAuth)
	s.mux.HandleFunc("/api/users/", s.toAuth)

	s.mux.HandleFunc("/api/Books", s.toCatalog)
	s.mux.HandleFunc("/api/Books/", s.toCatalog)
	s.mux.HandleFunc("/api/BookReview", s.toCatalog)
	s.mux.HandleFunc("/api/BookReview/", s.toCatalog)
	s.mux.HandleFunc("/api/Bookmark", s.toCatalog)
	s.mux.HandleFunc("/api/Bookmark/", s.toCatalog)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(limiter *ratelimit.FixedWindowLimiter, msg string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "|" + clientIP(r)
		if !limiter.Allow(key) {
			slog.Warn("security_event",
				"event", "gateway.rate_limit",
				"path", r.URL.Path,
				"method", r.Method,
				"ip", clientIP(r),
			)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, msg)
			return
		}
		next(w, r)
	}
}

func (s *Server) toAuth(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, s.authBase)
}

func (s *Server) toCatalog(w http.ResponseWriter, r *http.Request) {
	s.forward(w, r, s.catalogBase)
}

// forward replays the request against the upstream base URL and copies the
// response back unchanged. Transport failures collapse to a generic 502 so
// upstream addresses never leak to the browser.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, base string) {
	upstream, err := http.NewRequestWithContext(r.Context(), r.Method, base+r.URL.RequestURI(), r.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	copyHeaders(upstream.Header, r.Header)
	upstream.Header.Set("X-Forwarded-For", clientIP(r))
	if id := util.RequestIDFromRequest(r); id != "" {
		upstream.Header.Set("X-Request-Id", id)
	}

	resp, err := s.client.Do(upstream)
	if err != nil {
		slog.Warn("upstream request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		switch key {
		case "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade":
			continue
		}
		// The gateway middleware already sets these on every response.
		if strings.HasPrefix(key, "Access-Control-") || key == "Content-Security-Policy" ||
			key == "X-Content-Type-Options" || key == "X-Frame-Options" {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
