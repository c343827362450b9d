package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/tablesync/internal/config"
	"github.com/arwahdevops/tablesync/internal/metrics"
)

// Pinger is anything /readyz can probe. *db.Connector implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 3 * time.Second

// NewHandler builds the mux for metrics, health checks and optionally pprof.
// checks are keyed by the name reported in the /readyz body.
func NewHandler(cfg *config.Config, metricsStore *metrics.Store, checks map[string]Pinger, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(metricsStore.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		errs := make([]error, len(names))
		var wg sync.WaitGroup
		for i, name := range names {
			p := checks[name]
			if p == nil {
				errs[i] = errors.New("connection not established")
				continue
			}
			wg.Add(1)
			go func(i int, p Pinger) {
				defer wg.Done()
				errs[i] = p.Ping(pingCtx)
			}(i, p)
		}
		wg.Wait()

		ready := true
		status := make([]string, len(names))
		for i, name := range names {
			status[i] = fmt.Sprintf("%s=%s", name, formatPingError(errs[i]))
			if errs[i] != nil {
				ready = false
			}
		}
		if ready {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "Ready")
			return
		}
		log.Warn("Readiness check failed", zap.Strings("status", status))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "Not Ready: "+strings.Join(status, ", "))
	})

	if cfg.EnablePprof {
		log.Info("Enabling pprof endpoints on /debug/pprof/")
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// RunHTTPServer serves NewHandler on the metrics port until ctx is cancelled.
func RunHTTPServer(ctx context.Context, cfg *config.Config, metricsStore *metrics.Store, checks map[string]Pinger, logger *zap.Logger) {
	log := logger.Named("http-server")

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(cfg, metricsStore, checks, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server ListenAndServe error", zap.Error(err))
		}
		log.Debug("HTTP server stopped listening")
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		log.Debug("HTTP server gracefully stopped")
	}
}

func formatPingError(err error) string {
	if err == nil {
		return "OK"
	}
	return fmt.Sprintf("Error (%v)", err)
}
