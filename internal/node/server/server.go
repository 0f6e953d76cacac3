package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	httpmw "github.com/autopeer-io/sensornode/internal/pkg/middleware/http"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/options"
)

// Probes answer the server's endpoints. Nil probes report healthy and ready.
type Probes struct {
	// Healthy reports whether the scheduler is still running tasks.
	Healthy func() bool

	// Ready reports whether the node has finished starting.
	Ready func() bool

	// Status returns the document served on /status.
	Status func() any
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

func NewServer(opts *options.HttpOptions, probes Probes) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(probes),
			ReadHeaderTimeout: opts.Timeout,
			ReadTimeout:       opts.Timeout,
			WriteTimeout:      opts.Timeout,
		},
		options: opts,
	}
}

// NewRouter builds the status endpoints.
func NewRouter(probes Probes) *mux.Router {
	r := mux.NewRouter()
	r.Use(httpmw.Recover(), httpmw.Timeout(httpmw.DefaultRequestTimeout))
	r.HandleFunc("/healthz", probeHandler(probes.Healthy)).Methods(http.MethodGet)
	r.HandleFunc("/readyz", probeHandler(probes.Ready)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		var doc any = struct{}{}
		if probes.Status != nil {
			doc = probes.Status()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			log.Warn("Failed to write status", "error", err)
		}
	}).Methods(http.MethodGet)
	return r
}

func probeHandler(probe func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if probe != nil && !probe() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ok"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Starting HTTP Server", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
