package main

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/sweepline/pkg/config"
	"github.com/ajitpratap0/sweepline/pkg/logger"
	"github.com/ajitpratap0/sweepline/pkg/schema"
)

var version = "0.1.0"

// viperKey is the flag annotation naming the configuration key a flag sets
const viperKey = "viper"

// app carries the state shared by every command
type app struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	log        *zap.Logger
	registry   *schema.Registry
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{registry: schema.DefaultRegistry()}

	root := &cobra.Command{
		Use:   "sweepline",
		Short: "Sweepline - parameter sweeps over a concurrency analysis program",
		Long: `Sweepline runs an analysis program once for every point of a parameter space,
extracts a fixed set of fields from each run's output into a tabular data file,
and turns those files into gnuplot figures.

Configuration is read from a YAML file (--config), SWEEPLINE_* environment
variables and command line flags, in increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-encoding", "", "Log encoding (console, json)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file when a sweep ends")
	flags.Bool("trace", false, "Export OpenTelemetry spans for the sweep and each point")
	bindFlag(flags, "log-level", "observability.log.level")
	bindFlag(flags, "log-encoding", "observability.log.encoding")
	bindFlag(flags, "metrics-file", "observability.metrics_file")
	bindFlag(flags, "trace", "observability.tracing.enabled")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// version works without a readable configuration
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sweepline v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "schemas",
		Short: "List experiment kinds and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXPERIMENT\tFIELDS\tDESCRIPTION")
			for _, e := range a.registry.List() {
				fmt.Fprintf(w, "%s\t%d\t%s\n", e.Name, e.Schema.Len(), e.Description)
			}
			fmt.Fprintln(w, "depth:<k>\t-\tcoverage with per-depth columns up to depth k")
			return w.Flush()
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after file, environment and flags are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	root.AddCommand(configCmd)

	root.AddCommand(newSweepCmd(a))
	root.AddCommand(newReportCmd(a))
	root.AddCommand(newReadCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newArchiveCmd(a))
	root.AddCommand(newPublishCmd(a))

	return root
}

// load builds the configuration for cmd: defaults, file, environment, then
// every flag of cmd that is annotated with a configuration key
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[viperKey]; ok && bindErr == nil {
			bindErr = v.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(cfg.Observability.Log); err != nil {
		return err
	}

	a.v = v
	a.cfg = cfg
	a.log = logger.Get().With(zap.String("component", "sweepline-cli"))
	if a.configFile != "" {
		a.log.Debug("configuration loaded", zap.String("file", a.configFile))
	}
	return nil
}

// bindFlag marks the flag name as an override for the configuration key
func bindFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, viperKey, []string{key}); err != nil {
		panic(err)
	}
}
