package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peekapi/peekapi/internal/audiocore/export"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/testutil"
)

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Record.Rate = 8000
	s.Record.Gain = 1
	s.Record.ReconnectDelay = 20 * time.Millisecond
	s.Record.FailureThreshold = 5
	s.Record.StopTimeout = time.Second
	return s
}

func TestRunInterruptedKeepsAudio(t *testing.T) {
	t.Parallel()

	source := testutil.NewFakeSource(0, nil)
	path := filepath.Join(t.TempDir(), "out.wav")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		deadline := time.Now().Add(5 * time.Second)
		for source.Delivered() < 1600 && time.Now().Before(deadline) {
			time.Sleep(testutil.PollInterval)
		}
	}()

	require.NoError(t, Run(ctx, testSettings(), source, 60, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	samples, rate, err := export.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.GreaterOrEqual(t, len(samples), 1600)
	assert.Equal(t, int16(16383), samples[0], "0.5 at unity gain")
}

func TestRunRejectsInvalidSeconds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	for _, seconds := range []int{0, conf.MaxDuration + 1} {
		err := Run(context.Background(), testSettings(), testutil.NewFakeSource(0, nil), seconds, path)
		require.Error(t, err)
	}
	assert.NoFileExists(t, path)
}
