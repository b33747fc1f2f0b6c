// Package serve implements the peekapi serve command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/peekapi/peekapi/internal/audiocore/sources/malgo"
	"github.com/peekapi/peekapi/internal/buildinfo"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/httpcontroller"
	"github.com/peekapi/peekapi/internal/logger"
	"github.com/peekapi/peekapi/internal/notification"
	"github.com/peekapi/peekapi/internal/observability"
	"github.com/peekapi/peekapi/internal/recorder"
	"github.com/peekapi/peekapi/internal/systeminfo"
)

const shutdownTimeout = 10 * time.Second

// AnnotateFunc marks a flag as overriding a configuration key.
type AnnotateFunc func(flags *pflag.FlagSet, name, key string)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context, annotate AnnotateFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Capture system audio and serve snapshots over HTTP",
		Long:  "Start loopback capture on the default output device and serve /record, /health and /info.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, build)
		},
	}

	SetupFlags(cmd, annotate)
	return cmd
}

// SetupFlags configures flags specific to the serve command.
func SetupFlags(cmd *cobra.Command, annotate AnnotateFunc) {
	flags := cmd.Flags()
	flags.String("host", "", "Listen address")
	flags.IntP("port", "p", 0, "Listen port")
	flags.Bool("public", false, "Serve /record and /info to everyone")
	flags.String("device", "", "Playback device to capture, empty follows the system default")
	flags.Int("rate", 0, "Capture sample rate in Hz")
	flags.Int("duration", 0, "Seconds of audio kept for snapshots")
	flags.Float64("gain", 0, "Linear gain applied before 16 bit conversion")

	annotate(flags, "host", "basic.host")
	annotate(flags, "port", "basic.port")
	annotate(flags, "public", "basic.public")
	annotate(flags, "device", "record.device")
	annotate(flags, "rate", "record.rate")
	annotate(flags, "duration", "record.duration")
	annotate(flags, "gain", "record.gain")
}

// Run captures and serves until SIGINT or SIGTERM. SIGHUP reloads the
// configuration and restarts capture.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Global().Module("main")
	log.Info("starting peekapi",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()),
		logger.String("instance_id", build.GetInstanceID()),
		logger.String("config_file", settings.ConfigFile))

	var metrics *observability.Metrics
	if settings.Metrics.Enabled {
		var err error
		if metrics, err = observability.NewMetrics(); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	source := malgo.NewLoopbackSource(malgo.Config{Device: settings.Record.Device}, logger.Global().Module("audiocore.malgo"))

	opts := []recorder.Option{
		recorder.WithLogger(logger.Global().Module("recorder")),
		recorder.WithReconnectDelay(settings.Record.ReconnectDelay),
		recorder.WithFailureThreshold(settings.Record.FailureThreshold),
		recorder.WithStopTimeout(settings.Record.StopTimeout),
	}
	if metrics != nil {
		opts = append(opts, recorder.WithMetrics(metrics.Recorder))
	}

	alerts, err := notification.NewFromSettings(settings, hostLabel(settings), logger.Global().Module("notification"))
	if err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}
	if alerts != nil {
		defer alerts.Close()
		opts = append(opts, recorder.WithObserver(alerts))
	}

	rec, err := recorder.New(recorder.Config{
		SampleRate: settings.Record.Rate,
		Duration:   settings.Record.Duration,
		Gain:       settings.Record.Gain,
	}, source, opts...)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	rec.Start()
	defer rec.Stop()

	serverOpts := []httpcontroller.Option{
		httpcontroller.WithLogger(logger.Global().Module("http")),
		httpcontroller.WithInventory(systeminfo.NewCollector(settings.Basic.DeviceName, systeminfo.DefaultCacheTTL, logger.Global().Module("systeminfo"))),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, httpcontroller.WithMetricsHandler(metrics.Handler()))
	}
	server := httpcontroller.New(settings, rec, serverOpts...)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				reload(settings, rec, source, log)
				continue
			}
			log.Info("received signal, shutting down", logger.String("signal", sig.String()))
			return shutdown(server, serverErr, log)

		case <-ctx.Done():
			return shutdown(server, serverErr, log)

		case err := <-serverErr:
			if err != nil {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil
		}
	}
}

// shutdown stops the HTTP server first so no snapshot is requested from a
// stopping recorder. The deferred Stop then ends capture.
func shutdown(server *httpcontroller.Server, serverErr <-chan error, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown incomplete", logger.Error(err))
	}
	if err := <-serverErr; err != nil {
		return err
	}
	log.Info("peekapi stopped")
	return nil
}

// reload rotates the log file, re-reads the configuration file and restarts
// capture with the new record settings. Listener and logging changes need a
// process restart.
func reload(settings *conf.Settings, rec *recorder.Recorder, source *malgo.LoopbackSource, log logger.Logger) {
	log.Info("reloading configuration", logger.String("config_file", settings.ConfigFile))

	// SIGHUP also starts a fresh log file
	if err := logger.Global().Rotate(); err != nil {
		log.Warn("log rotation failed", logger.Error(err))
	}

	loaded, err := conf.Load(settings.ConfigFile)
	if err != nil {
		log.Error("configuration reload failed, keeping current settings", logger.Error(err))
		rec.Restart()
		return
	}

	if err := rec.SetGain(loaded.Record.Gain); err != nil {
		log.Warn("invalid gain in reloaded configuration", logger.Error(err))
	}
	if err := rec.Reconfigure(loaded.Record.Rate, loaded.Record.Duration); err != nil {
		log.Warn("invalid capture format in reloaded configuration", logger.Error(err))
	}
	source.SetDevice(loaded.Record.Device)
	settings.Record = loaded.Record
	settings.Basic.Public = loaded.Basic.Public
	settings.Basic.APIKey = loaded.Basic.APIKey

	rec.Restart()
}

func hostLabel(settings *conf.Settings) string {
	if settings.Basic.DeviceName != "" {
		return settings.Basic.DeviceName
	}
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "unknown"
}
