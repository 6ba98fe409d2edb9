package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dshills/statebus/internal/event"
)

// Buses is the set of buses the API serves. *demo.Buses satisfies it.
type Buses interface {
	Inspectors() []event.Inspector
	Lookup(name string) (event.Inspector, bool)
}

// Options configures NewMux.
type Options struct {
	// Registry receives the HTTP metrics and is served on /metrics.
	// Nil serves the default registry.
	Registry *prometheus.Registry

	// Logger receives access logs at debug level.
	Logger zerolog.Logger

	// Ready reports readiness. Nil means always ready.
	Ready func() bool
}

// BusSummary is the /buses payload for one bus.
type BusSummary struct {
	event.Stats
	Members []string `json:"members,omitempty"`
}

type memberLister interface {
	Members() []string
}

// NewMux builds the admin router.
func NewMux(buses Buses, opts Options) http.Handler {
	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	metrics := newHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(opts.Logger))
	r.Use(metrics.middleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready == nil || opts.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/buses", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			ins := buses.Inspectors()
			out := make([]BusSummary, 0, len(ins))
			for _, b := range ins {
				out = append(out, summarize(b))
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
			writeJSON(w, http.StatusOK, map[string]any{"buses": out})
		})

		r.Get("/{name}", func(w http.ResponseWriter, r *http.Request) {
			b, ok := buses.Lookup(chi.URLParam(r, "name"))
			if !ok {
				writeJSONError(w, http.StatusNotFound, "unknown bus")
				return
			}
			writeJSON(w, http.StatusOK, summarize(b))
		})

		r.Get("/{name}/topics", func(w http.ResponseWriter, r *http.Request) {
			b, ok := buses.Lookup(chi.URLParam(r, "name"))
			if !ok {
				writeJSONError(w, http.StatusNotFound, "unknown bus")
				return
			}
			topics := b.Inspect(r.URL.Query().Get("match"))
			if topics == nil {
				topics = []event.TopicInfo{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"bus": b.Name(), "topics": topics})
		})
	})

	return r
}

func summarize(b event.Inspector) BusSummary {
	s := BusSummary{Stats: b.Stats()}
	if ml, ok := b.(memberLister); ok {
		s.Members = ml.Members()
	}
	return s
}

func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error envelope.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error":   true,
		"message": msg,
		"code":    status,
	})
}

// Server runs the admin router on a TCP address.
type Server struct {
	srv *http.Server
	log zerolog.Logger

	mu   sync.Mutex
	ln   net.Listener
	done chan error
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start listens and serves in the background. It returns once the
// listener is bound so Addr reports the real port.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.srv.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.done = make(chan error, 1)
	done := s.done
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.log.Error().Err(err).Msg("admin server failed")
		}
		done <- err
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-done
}
