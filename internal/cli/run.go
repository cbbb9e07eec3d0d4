package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/kubeprobe/internal/metrics"
	"github.com/ppiankov/kubeprobe/internal/server"
	"github.com/ppiankov/kubeprobe/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// apiCheckTimeout bounds the startup reachability check against the API server.
const apiCheckTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Continuously check service reachability and export Prometheus metrics",
	Long: `Run the reachability exporter.

Every --interval, kubeprobe lists Services, probes each declared TCP port by
cluster DNS name and by cluster IP, and updates the metrics served on
--metrics-address/metrics.

Metric modes:
  state    kubeprobe_service_reachable{service,namespace,port,address_type} = 1|0
           (latest observed state, recommended for alerting)
  counter  kubeprobe_service_checks_{successful,failed}_total
           (increment-only history)

Failures to list Services are logged and retried on the next cycle. The
process exits 0 on SIGINT/SIGTERM and 3 if the Kubernetes API cannot be
reached at startup.

Examples:
  # Run in-cluster with defaults (every 5m, metrics on :8000)
  kubeprobe run

  # Faster polling, only the production namespace
  kubeprobe run --interval 1m --namespace production

  # Expose /check to trigger a cycle on demand
  kubeprobe run --enable-trigger`,
	RunE: runExporter,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.Duration("interval", defaultInterval, "time to wait between polling cycles")
	flags.String("metrics-address", defaultMetricsAddress, "listen address for /metrics")
	flags.String("metrics-mode", string(metrics.ModeState), "metric recording policy (state|counter)")
	flags.Bool("enable-trigger", false, "serve /check to run a cycle on demand")
	flags.Int("max-cycles", 0, "stop after this many cycles (0 = run forever)")

	bindFlags(flags)
}

func runExporter(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return util.WithExitCode(util.ExitInvalidInput, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := util.BuildKubeClient(s.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to build Kubernetes client: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, apiCheckTimeout)
	serverVersion, err := util.VerifyAPI(verifyCtx, client)
	cancel()
	if err != nil {
		return interrupted(ctx, err)
	}

	recorder, err := metrics.NewPrometheusRecorder(s.MetricsMode)
	if err != nil {
		return util.WithExitCode(util.ExitInvalidInput, err)
	}

	sched := newScheduler(client, recorder, recorder, s, logger)

	srv := server.New(server.Config{
		Address:       s.MetricsAddress,
		EnableTrigger: s.EnableTrigger,
	}, recorder.Handler(), sched, logger)
	if _, err := srv.Start(ctx); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"version":        version,
		"server_version": serverVersion,
		"namespace":      namespaceLabel(s.Namespace),
		"cluster_domain": s.ClusterDomain,
		"probe_timeout":  s.ProbeTimeout.String(),
		"metrics_mode":   recorder.Mode(),
	}).Info("kubeprobe started")

	return sched.Run(ctx)
}

func namespaceLabel(ns string) string {
	if ns == "" {
		return "all"
	}
	return ns
}
