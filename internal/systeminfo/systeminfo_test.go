package systeminfo

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peekapi/peekapi/internal/logger"
)

type fakeGatherers struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeGatherers) gatherers() gatherers {
	errGather := fmt.Errorf("lookup unavailable")
	return gatherers{
		host: func(context.Context) (*host.InfoStat, error) {
			f.calls.Add(1)
			if f.fail {
				return nil, errGather
			}
			return &host.InfoStat{Platform: "ubuntu", PlatformVersion: "24.04", KernelVersion: "6.8.0", Uptime: 3600}, nil
		},
		cpu: func(context.Context) ([]cpu.InfoStat, error) {
			if f.fail {
				return nil, errGather
			}
			return []cpu.InfoStat{{ModelName: "AMD Ryzen 7 5800X"}}, nil
		},
		memory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			if f.fail {
				return nil, errGather
			}
			return &mem.VirtualMemoryStat{Total: 32 << 30}, nil
		},
		name: func() (string, error) {
			if f.fail {
				return "", errGather
			}
			return "studio-pc", nil
		},
	}
}

func newTestCollector(deviceName string, fake *fakeGatherers) *Collector {
	c := NewCollector(deviceName, time.Minute, logger.NewDiscard())
	c.gatherers = fake.gatherers()
	return c
}

func TestCollectorGet(t *testing.T) {
	t.Parallel()

	fake := &fakeGatherers{}
	c := newTestCollector("", fake)

	info, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "studio-pc", info.Hostname)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, "ubuntu", info.Platform)
	assert.Equal(t, "6.8.0", info.KernelVersion)
	assert.Equal(t, "AMD Ryzen 7 5800X", info.CPU)
	assert.Equal(t, uint64(32<<30), info.MemoryTotal)
	assert.Equal(t, uint64(3600), info.UptimeSeconds)
}

func TestCollectorDeviceNameOverride(t *testing.T) {
	t.Parallel()

	c := newTestCollector("Living Room PC", &fakeGatherers{})
	info, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Living Room PC", info.Hostname)
}

func TestCollectorCachesInventory(t *testing.T) {
	t.Parallel()

	fake := &fakeGatherers{}
	c := newTestCollector("", fake)

	for range 3 {
		_, err := c.Get(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestCollectorAllGatherersFail(t *testing.T) {
	t.Parallel()

	c := newTestCollector("", &fakeGatherers{fail: true})
	_, err := c.Get(context.Background())
	require.Error(t, err)
}

func TestCollectorPartialFailureDegrades(t *testing.T) {
	t.Parallel()

	c := newTestCollector("Office", &fakeGatherers{fail: true})
	info, err := c.Get(context.Background())
	require.NoError(t, err, "the configured name is enough to answer")
	assert.Equal(t, "Office", info.Hostname)
	assert.Equal(t, unknown, info.CPU)
	assert.Equal(t, unknown, info.Platform)
	assert.Positive(t, info.CPUCores)
}
