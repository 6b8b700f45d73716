package bill

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server exposes bill batches and their reports over HTTP
type Server struct {
	service  *Service
	registry ReportRegistry
	config   ServerConfig
	mux      *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerConfig holds the server settings
type ServerConfig struct {
	APIKey    string // used when a request carries no X-API-Key header
	ReportDir string // where report files are written, system temp dir when empty
	UploadDir string // where uploads are staged, system temp dir when empty
	BasicAuth BasicAuth
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, registry ReportRegistry, config ServerConfig) *Server {
	return NewServerWithMux(service, registry, config, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, registry ReportRegistry, config ServerConfig, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		registry: registry,
		config:   config,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	auth := s.config.BasicAuth
	if auth.Username == "" && auth.Password == "" {
		return true // No auth required if not configured
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(auth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(auth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Bill Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/reports/{id}", s.requireAuth(s.handleGetReport))
	s.mux.HandleFunc("DELETE /api/reports/{id}", s.requireAuth(s.handleDeleteReport))
	s.mux.HandleFunc("GET /api/reports", s.requireAuth(s.handleListReports))
	s.mux.HandleFunc("POST /api/reports", s.requireAuth(s.handleCreateReport))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
