// Package apiserver exposes the pool's contain/insert/batch_contain/
// batch_insert operations and svcconfig's per-appid knobs over a plain JSON
// HTTP API. Grounded on the shape of the teacher's internal/server package
// (tracking middleware for graceful drain, probe endpoints, optional TLS via
// a CertManager, Serve/Stop lifecycle) adapted from a Connect-RPC mux to a
// plain net/http mux, since this corpus carries no protobuf codegen for a
// generated RPC service.
package apiserver

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sfp/internal/auth"
	"sfp/internal/logging"
	"sfp/internal/pool"
	"sfp/internal/svcconfig"
)

// CertManager supplies TLS certificates to the server. Satisfied by
// *cert.Manager.
type CertManager interface {
	GetCertificate(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error)
}

// Config configures a Server.
type Config struct {
	Pool   *pool.Pool
	Config svcconfig.Store
	Tokens *auth.TokenService

	// NoAuth disables authentication. Every request is treated as an admin
	// scoped to every appid. For local development and tests.
	NoAuth bool

	// CertManager, when set, enables HTTPS via Serve.
	CertManager CertManager

	Logger *slog.Logger
}

// Server is the sfp HTTP API.
type Server struct {
	pool   *pool.Pool
	config svcconfig.Store
	tokens *auth.TokenService
	noAuth bool
	certs  CertManager
	logger *slog.Logger

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	inFlight sync.WaitGroup
	draining atomic.Bool
}

// New builds a Server. Call Serve to start accepting connections.
func New(cfg Config) *Server {
	s := &Server{
		pool:   cfg.Pool,
		config: cfg.Config,
		tokens: cfg.Tokens,
		noAuth: cfg.NoAuth,
		certs:  cfg.CertManager,
		logger: logging.Default(cfg.Logger).With("component", "apiserver"),
	}
	s.handler = s.requestIDMiddleware(s.trackingMiddleware(s.authMiddleware(s.buildMux())))
	return s
}

// trackingMiddleware tracks in-flight requests so Stop can drain before
// closing the listener, and rejects new requests once draining begins.
func (s *Server) trackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			http.Error(w, "server is draining", http.StatusServiceUnavailable)
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Done()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware stamps every request with a correlation ID (reused
// from the client's X-Request-ID header when present), echoes it back, and
// attaches it to the request-scoped logger so every log line for a request
// can be grepped out of the stream.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

// RequestID returns the correlation ID stamped on ctx by requestIDMiddleware,
// or "" if none is present.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// authMiddleware wraps next with token verification, or bypasses it
// entirely when NoAuth is set. Probe endpoints are mounted directly on the
// mux ahead of this wrapping, so they are never gated.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.noAuth || s.tokens == nil {
		return auth.NoAuthMiddleware(next)
	}
	return auth.Middleware(s.tokens)(next)
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /v1/{appid}/{group}/contain", s.handleContain)
	mux.HandleFunc("POST /v1/{appid}/{group}/insert", s.handleInsert)
	mux.HandleFunc("POST /v1/{appid}/{group}/batch_contain", s.handleBatchContain)
	mux.HandleFunc("POST /v1/{appid}/{group}/batch_insert", s.handleBatchInsert)
	mux.HandleFunc("GET /v1/{appid}/{group}/chunks", s.handleChunkCount)

	mux.HandleFunc("GET /v1/{appid}/config", s.handleGetConfig)
	mux.HandleFunc("PUT /v1/{appid}/config", s.handlePutConfig)

	return mux
}

// Handler returns the fully wrapped handler, for tests that want to drive
// the API with httptest without going through Serve.
func (s *Server) Handler() http.Handler { return s.handler }

// ServeTCP listens and serves on addr, blocking until Stop is called or an
// unrecoverable error occurs.
func (s *Server) ServeTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve runs the server on listener, upgrading to TLS when a CertManager is
// configured.
func (s *Server) Serve(listener net.Listener) error {
	if s.certs != nil {
		listener = tls.NewListener(listener, &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: s.certs.GetCertificate,
		})
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info("apiserver starting", "addr", listener.Addr().String())
	err := server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests, then shuts down the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.draining.Store(true)
	s.inFlight.Wait()

	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	s.logger.Info("apiserver stopping")
	return server.Shutdown(ctx)
}
