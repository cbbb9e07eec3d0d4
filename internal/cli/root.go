package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/kubeprobe/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const version = "0.2.0"

const envPrefix = "KUBEPROBE"

var (
	// Global flags
	cfgFile string

	// configErr holds a config file problem found during initConfig,
	// reported once a command actually runs.
	configErr error

	logger *logrus.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kubeprobe",
	Short: "Kubernetes service reachability checker with Prometheus metrics",
	Long: `kubeprobe checks that every Kubernetes Service answers on its declared TCP ports.

For each Service it opens a TCP connection to each port twice:
  • through the cluster DNS name (<name>.<namespace>.svc.cluster.local)
  • through the cluster IP

Results are exported as Prometheus gauges so broken DNS, kube-proxy rules or
missing endpoints show up on dashboards and alerts.

Commands:
  run    - long-running exporter, polls on a fixed interval and serves /metrics
  check  - single pass, prints a report and exits non-zero on failures

All flags can be set through KUBEPROBE_<FLAG> environment variables
(dashes become underscores) or a YAML config file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Disable default completion command
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return util.WithExitCode(util.ExitInvalidInput, configErr)
		}
		log, err := util.NewLogger(os.Stderr, viper.GetString("log-level"), viper.GetString("log-format"))
		if err != nil {
			return util.WithExitCode(util.ExitInvalidInput, err)
		}
		logger = log
		if used := viper.ConfigFileUsed(); used != "" {
			logger.WithField("file", used).Debug("Using config file")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kubeprobe.yaml)")
	flags.String("kubeconfig", "", "path to kubeconfig file (default is $KUBECONFIG or in-cluster config)")
	flags.StringP("namespace", "n", "", "namespace to check (default is all namespaces)")
	flags.StringP("selector", "l", "", "label selector to filter services")
	flags.String("cluster-domain", defaultClusterDomain, "DNS suffix appended to <service>.<namespace>")
	flags.Duration("probe-timeout", defaultProbeTimeout, "TCP connect timeout per probe (must be > 0)")
	flags.Int64("max-inflight", defaultMaxInFlight, "maximum concurrent TCP probes")
	flags.Int("max-concurrent-services", defaultMaxConcurrentServices, "maximum services checked concurrently")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("log-format", "text", "log format (text|json)")

	bindFlags(flags)
}

// bindFlags binds every flag in fs to viper under its own name.
func bindFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := viper.BindPFlag(f.Name, f); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", f.Name, err))
		}
	})
}

// envKeyReplacer maps flag names to environment variable suffixes.
func envKeyReplacer() *strings.Replacer {
	return strings.NewReplacer("-", "_")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer())
	viper.AutomaticEnv() // read in environment variables that match

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search config in home directory with name ".kubeprobe" (without extension)
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath("/etc/kubeprobe")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kubeprobe")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("read config: %w", err)
		}
	}
}
