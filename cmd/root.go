package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/peekapi/peekapi/cmd/devices"
	"github.com/peekapi/peekapi/cmd/record"
	"github.com/peekapi/peekapi/cmd/serve"
	"github.com/peekapi/peekapi/internal/buildinfo"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

// ViperKeyAnnotation maps a flag to the configuration key it overrides.
const ViperKeyAnnotation = "viper_key"

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. Without a subcommand it
// runs serve.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configPath string
	var centralLogger *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:          "peekapi",
		Short:        "Serve the last seconds of system audio over HTTP",
		Long:         "peekapi continuously captures what the default output device is playing and serves it as a WAV snapshot.",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(build.String() + "\n")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	Annotate(rootCmd.PersistentFlags(), "debug", "debug")

	serveCmd := serve.Command(settings, build, Annotate)
	devicesCmd := devices.Command()
	recordCmd := record.Command(settings, Annotate)
	rootCmd.AddCommand(serveCmd, devicesCmd, recordCmd)

	// Bare peekapi behaves like peekapi serve
	serve.SetupFlags(rootCmd, Annotate)
	rootCmd.RunE = serveCmd.RunE

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Listing devices needs neither configuration nor log files
		if cmd.Name() == devicesCmd.Name() {
			return nil
		}
		cl, err := initialize(cmd, settings, configPath, build)
		if err != nil {
			return err
		}
		centralLogger = cl
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushSentry(sentryFlushTimeout)
		if centralLogger != nil {
			if err := centralLogger.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close log files: %v\n", err)
			}
		}
	}

	return rootCmd
}

// Annotate marks flag name as overriding configuration key.
func Annotate(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, ViperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("annotating unknown flag %q: %v", name, err))
	}
}

// bindFlags binds the annotated flags of the executing command to their
// configuration keys, so a flag given on the command line wins over the
// config file and environment.
func bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[ViperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := viper.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("error binding flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// initialize loads the configuration and sets up logging and telemetry before
// any subcommand runs.
func initialize(cmd *cobra.Command, settings *conf.Settings, configPath string, build *buildinfo.Context) (*logger.CentralLogger, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, err
	}

	loaded, err := conf.Load(configPath)
	if err != nil {
		return nil, err
	}
	loaded.Version = build.GetVersion()

	if loaded.Debug {
		loaded.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if loaded.Logging.Console != nil {
			loaded.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	centralLogger, err := logger.NewCentralLogger(&loaded.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(centralLogger)

	if loaded.Telemetry.Enabled {
		if err := errors.InitSentry(loaded.Telemetry.DSN, build.Release()); err != nil {
			centralLogger.Module("telemetry").Warn("error telemetry disabled", logger.Error(err))
		} else {
			errors.SetTelemetryReporter(errors.NewSentryReporter(true))
		}
	}

	*settings = *loaded
	return centralLogger, nil
}
