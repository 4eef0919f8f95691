package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"octrecon/pkg/config"
	"octrecon/pkg/logging"
)

const defaultConfigPath = "octrecon.yaml"

var exampleUsage = `  octrecon replay recordings/OCT0001_2200.bin --export --export-dir out
  octrecon replay recordings/session1 --config octrecon.toml --watch
  octrecon background recordings/OCT0001_2200.bin --frames 20 --out calibration
  octrecon calib-plot calibration --out calibration.png
  octrecon config init octrecon.yaml`

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the state shared by all subcommands.
type app struct {
	cfgPath  string
	logLevel string
	verbose  bool

	cfg *config.Config
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{log: logging.Component("cli")}
	root := newRootCommand(a)
	if err := root.ExecuteContext(ctx); err != nil {
		logger := logging.Logger()
		logger.Error().Err(err).Str("command", root.Name()).Msg("octrecon failed")
		stop()
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "octrecon",
		Short:         "Reconstruct swept-source OCT fringe recordings into B-scan images",
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd.Flags())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", defaultConfigPath, "configuration file (.yaml or .toml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newReplayCommand(a),
		newBackgroundCommand(a),
		newCalibPlotCommand(a),
		newConfigCommand(a),
	)
	return root
}

// loadConfig reads the configuration file, applies the output flags that
// were set on the command line and configures logging.
func (a *app) loadConfig(flags *pflag.FlagSet) error {
	cfg, err := config.LoadConfig(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.Changed("log-level") {
		cfg.Output.LogLevel = a.logLevel
	}
	if flags.Changed("verbose") {
		cfg.Output.Verbose = a.verbose
	}

	level := cfg.Output.LogLevel
	if cfg.Output.Verbose {
		level = "debug"
	}
	logging.SetLevel(level)
	a.log = logging.Component("cli")
	a.cfg = cfg
	return nil
}
