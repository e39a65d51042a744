// Package debug runs the optional debug HTTP listener of serve mode.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"taskgraph/internal/config"
	"taskgraph/pkg/logx"
)

// StatusFunc returns the value served as JSON at /status.
type StatusFunc func() any

// Server starts, stops and moves the listener as the config changes.
type Server struct {
	mu     sync.Mutex
	log    logx.Logger
	status StatusFunc
	srv    *http.Server
	ln     net.Listener
	want   string // configured address
	addr   string // bound address
}

func New(log logx.Logger, status StatusFunc) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log, status: status}
}

// Apply brings the server in line with cfg and sets the runtime profile
// rates, which apply even while the listener is off.
func (s *Server) Apply(ctx context.Context, cfg config.DebugConfig) {
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.want == cfg.Address {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(cfg.Address)
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body any = struct{}{}
		if s.status != nil {
			body = s.status()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(body); err != nil {
			s.log.Debug("status write failed", logx.Err(err))
		}
	})
	return mux
}

func (s *Server) startLocked(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Warn("debug listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}
	srv := &http.Server{Handler: s.handler(), ReadHeaderTimeout: 5 * time.Second}
	s.srv, s.ln, s.want, s.addr = srv, ln, addr, ln.Addr().String()

	bound := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("debug server error", logx.String("addr", bound), logx.Err(err))
		}
	}()
	s.log.Info("debug server enabled", logx.String("addr", bound))
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.want, s.addr = nil, nil, "", ""

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("debug server shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("debug server disabled", logx.String("addr", addr))
}

// Addr is the bound address, empty while stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
