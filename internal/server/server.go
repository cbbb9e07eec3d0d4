// Package server exposes check results over HTTP for Prometheus scraping.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"github.com/sirupsen/logrus"
)

const (
	metricsPath = "/metrics"
	healthzPath = "/healthz"
	triggerPath = "/check"
	reportPath  = "/report"

	DefaultAddress = ":8000"
)

// Config holds server configuration.
type Config struct {
	Address       string
	EnableTrigger bool
}

// CycleRunner runs one polling cycle on demand and keeps the latest result.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*checker.CycleReport, error)
	Last() *checker.CycleReport
}

// Server serves /metrics, /healthz, /report and optionally /check.
type Server struct {
	config Config
	server *http.Server
	log    logrus.FieldLogger
}

// New builds the server. /report is served when runner is set; /check also
// needs EnableTrigger.
func New(cfg Config, metricsHandler http.Handler, runner CycleRunner, log logrus.FieldLogger) *Server {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, metricsHandler)
	mux.HandleFunc(healthzPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if runner != nil {
		mux.Handle(reportPath, reportHandler(runner))
		if cfg.EnableTrigger {
			mux.Handle(triggerPath, triggerHandler(runner, log))
		}
	}

	return &Server{
		config: cfg,
		server: &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			Handler:           mux,
		},
		log: log,
	}
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listener and serves in the background until ctx is done.
// A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on %s: %w", s.config.Address, err)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("Metrics server shutdown")
		}
	}()

	s.log.WithField("address", ln.Addr().String()).Info("Started metrics server")
	return ln.Addr(), nil
}

// triggerResponse is the JSON body returned by the trigger endpoint.
type triggerResponse struct {
	Status   string                `json:"status"`
	Error    string                `json:"error,omitempty"`
	Duration string                `json:"duration,omitempty"`
	Summary  *checker.CycleSummary `json:"summary,omitempty"`
}

func triggerHandler(runner CycleRunner, log logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := triggerResponse{Status: "ok"}
		status := http.StatusOK

		report, err := runner.RunCycle(r.Context())
		if err != nil {
			log.WithError(err).Error("Triggered cycle failed")
			resp.Status = "error"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			summary := report.Summary()
			resp.Summary = &summary
			resp.Duration = report.Duration.String()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// reportHandler serves the latest completed cycle as JSON without probing.
func reportHandler(runner CycleRunner) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		report := runner.Last()
		if report == nil {
			http.Error(w, "no completed cycle yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})
}
