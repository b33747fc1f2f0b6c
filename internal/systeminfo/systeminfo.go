// Package systeminfo reports the host hardware inventory served by /info.
package systeminfo

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

const (
	// DefaultCacheTTL is how long an inventory is reused. Hardware rarely
	// changes and collecting it costs several syscalls.
	DefaultCacheTTL = 5 * time.Minute

	cacheKey = "inventory"
	unknown  = "Unknown"
)

// Info is the host inventory.
type Info struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Architecture    string `json:"architecture"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Virtualization  string `json:"virtualization,omitempty"`
	CPU             string `json:"cpu"`
	CPUCores        int    `json:"cpu_cores"`
	MemoryTotal     uint64 `json:"memory_total_bytes"`
	UptimeSeconds   uint64 `json:"uptime_seconds"`
}

// gatherers wraps the gopsutil calls so tests can replace them.
type gatherers struct {
	host   func(ctx context.Context) (*host.InfoStat, error)
	cpu    func(ctx context.Context) ([]cpu.InfoStat, error)
	memory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	name   func() (string, error)
}

var defaultGatherers = gatherers{
	host:   host.InfoWithContext,
	cpu:    cpu.InfoWithContext,
	memory: mem.VirtualMemoryWithContext,
	name:   os.Hostname,
}

// Collector gathers and caches the host inventory.
type Collector struct {
	deviceName string
	cache      *cache.Cache
	gatherers  gatherers
	log        logger.Logger
}

// NewCollector creates a Collector. A non-empty deviceName replaces the
// system hostname in reports.
func NewCollector(deviceName string, ttl time.Duration, log logger.Logger) *Collector {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Global().Module("systeminfo")
	}
	return &Collector{
		deviceName: deviceName,
		cache:      cache.New(ttl, 2*ttl),
		gatherers:  defaultGatherers,
		log:        log,
	}
}

// Get returns the cached inventory, collecting it when the cache is cold.
// Individual lookup failures degrade to "Unknown" fields. An error is
// returned only when no lookup succeeded.
func (c *Collector) Get(ctx context.Context) (Info, error) {
	if cached, found := c.cache.Get(cacheKey); found {
		return cached.(Info), nil
	}

	info, err := c.collect(ctx)
	if err != nil {
		return Info{}, err
	}
	c.cache.Set(cacheKey, info, cache.DefaultExpiration)
	return info, nil
}

func (c *Collector) collect(ctx context.Context) (Info, error) {
	info := Info{
		Hostname:        c.deviceName,
		OS:              runtime.GOOS,
		Architecture:    runtime.GOARCH,
		Platform:        unknown,
		PlatformVersion: unknown,
		KernelVersion:   unknown,
		CPU:             unknown,
		CPUCores:        runtime.NumCPU(),
	}
	var failures []error

	if info.Hostname == "" {
		name, err := c.gatherers.name()
		if err != nil {
			failures = append(failures, err)
			name = unknown
		}
		info.Hostname = name
	}

	if h, err := c.gatherers.host(ctx); err != nil {
		failures = append(failures, err)
	} else {
		info.Platform = orUnknown(h.Platform)
		info.PlatformVersion = orUnknown(h.PlatformVersion)
		info.KernelVersion = orUnknown(h.KernelVersion)
		info.Virtualization = h.VirtualizationSystem
		info.UptimeSeconds = h.Uptime
	}

	if cpus, err := c.gatherers.cpu(ctx); err != nil {
		failures = append(failures, err)
	} else if len(cpus) > 0 {
		info.CPU = orUnknown(cpus[0].ModelName)
	}

	if vm, err := c.gatherers.memory(ctx); err != nil {
		failures = append(failures, err)
	} else {
		info.MemoryTotal = vm.Total
	}

	if len(failures) == 4 {
		return Info{}, errors.New(errors.Join(failures...)).
			Component("systeminfo").
			Category(errors.CategorySystem).
			Context("operation", "collect_inventory").
			Build()
	}
	if len(failures) > 0 {
		c.log.Warn("partial system inventory",
			logger.Int("failed_lookups", len(failures)),
			logger.Error(errors.Join(failures...)))
	}
	return info, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
