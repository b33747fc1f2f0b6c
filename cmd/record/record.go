// Package record implements the peekapi record command.
package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/audiocore/sources/malgo"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/logger"
	"github.com/peekapi/peekapi/internal/recorder"
)

// Command creates the record command, which captures a fixed length of
// system audio into a WAV file and exits.
func Command(settings *conf.Settings, annotate func(flags *pflag.FlagSet, name, key string)) *cobra.Command {
	var seconds int
	var out string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture system audio to a WAV file",
		Long:  "Capture what the output device plays for --seconds and write it to --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
			defer stop()

			source := malgo.NewLoopbackSource(malgo.Config{Device: settings.Record.Device}, logger.Global().Module("audiocore.malgo"))
			return Run(ctx, settings, source, seconds, out)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&seconds, "seconds", "s", 10, "Seconds of audio to capture")
	flags.StringVarP(&out, "out", "o", "peekapi.wav", "Output WAV file")
	flags.String("device", "", "Playback device to capture, empty follows the system default")
	annotate(flags, "device", "record.device")

	return cmd
}

// Run records seconds of audio from source into path. An interrupt ends the
// capture early and keeps what was recorded so far.
func Run(ctx context.Context, settings *conf.Settings, source audiocore.DeviceSource, seconds int, path string) error {
	log := logger.Global().Module("record")

	if seconds < conf.MinDuration || seconds > conf.MaxDuration {
		return fmt.Errorf("seconds must be between %d and %d, got %d", conf.MinDuration, conf.MaxDuration, seconds)
	}

	rec, err := recorder.New(recorder.Config{
		SampleRate: settings.Record.Rate,
		Duration:   seconds,
		Gain:       settings.Record.Gain,
	}, source,
		recorder.WithLogger(logger.Global().Module("recorder")),
		recorder.WithReconnectDelay(settings.Record.ReconnectDelay),
		recorder.WithFailureThreshold(settings.Record.FailureThreshold),
		recorder.WithStopTimeout(settings.Record.StopTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}

	log.Info("recording", logger.Int("seconds", seconds), logger.String("path", path))
	rec.Start()

	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		log.Info("recording interrupted")
	}
	rec.Stop()

	data, err := rec.GetSnapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.Info("recording saved", logger.String("path", path), logger.Int("bytes", len(data)))
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
