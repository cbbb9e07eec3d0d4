package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/kubeprobe/internal/checker"
	"github.com/ppiankov/kubeprobe/internal/export"
	"github.com/ppiankov/kubeprobe/internal/metrics"
	"github.com/ppiankov/kubeprobe/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var checkConfig struct {
	output      string
	outputFile  string
	metricsFile string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single reachability pass and print the results",
	Long: `Run one polling cycle and print a per-port report.

Exit codes:
  0  every probe succeeded
  1  at least one hostname or cluster IP probe failed
  2  invalid flags or configuration
  3  Kubernetes API or runtime error

Examples:
  # Table output for all namespaces
  kubeprobe check

  # JSON for a single namespace
  kubeprobe check -n billing -o json

  # Save YAML to a file (format detected from the extension)
  kubeprobe check --output-file report.yaml

  # Feed node_exporter's textfile collector from a CronJob
  kubeprobe check -o json --metrics-file /var/lib/node_exporter/kubeprobe.prom`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkConfig.output, "output", "o", "", "output format (text|json|yaml)")
	checkCmd.Flags().StringVar(&checkConfig.outputFile, "output-file", "", "write the report to a file instead of stdout")
	checkCmd.Flags().StringVar(&checkConfig.metricsFile, "metrics-file", "", "also write the metrics in Prometheus text format to this file")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return util.WithExitCode(util.ExitInvalidInput, err)
	}

	format, err := resolveFormat(checkConfig.output, checkConfig.outputFile)
	if err != nil {
		return util.WithExitCode(util.ExitInvalidInput, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := util.BuildKubeClient(s.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to build Kubernetes client: %w", err)
	}

	recorder, err := metrics.NewPrometheusRecorder(metrics.ModeState)
	if err != nil {
		return err
	}
	sched := newScheduler(client, recorder, recorder, s, logger)

	report, err := sched.RunCycle(ctx)
	if err != nil {
		return interrupted(ctx, err)
	}

	if checkConfig.metricsFile != "" {
		if err := writeMetricsFile(recorder, checkConfig.metricsFile); err != nil {
			return err
		}
	}

	if err := writeReport(report, format, s, checkConfig.outputFile, cmd.OutOrStdout()); err != nil {
		return err
	}

	if failures := report.Summary().Failures(); failures > 0 {
		return util.WithExitCode(util.ExitUnreachable, fmt.Errorf("%d probe(s) failed", failures))
	}
	return nil
}

// resolveFormat picks the explicit format, else the one implied by the file name.
func resolveFormat(output, outputFile string) (export.Format, error) {
	if output == "" && outputFile != "" {
		return export.DetectFormat(outputFile), nil
	}
	return export.ParseFormat(output)
}

func writeReport(report *checker.CycleReport, format export.Format, s *settings, outputFile string, stdout io.Writer) error {
	exporter := export.Exporter{
		Format: format,
		Metadata: export.ExportMetadata{
			GeneratedAt:      time.Now().UTC(),
			KubeprobeVersion: version,
			ClusterDomain:    s.ClusterDomain,
			Namespace:        s.Namespace,
		},
	}

	if outputFile == "" {
		return exporter.Export(report, stdout)
	}

	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputFile, err)
	}
	defer f.Close()

	if err := exporter.Export(report, f); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	logger.WithField("file", outputFile).Info("Report written")
	return nil
}

// writeMetricsFile writes the snapshot next to the target and renames it into
// place so a textfile collector never reads a partial file.
func writeMetricsFile(recorder *metrics.PrometheusRecorder, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if err := recorder.Snapshot(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
