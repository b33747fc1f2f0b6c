package malgo

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/errors"
)

const osWindows = "windows"

// monitorMarkers identify capture devices that mirror an output device on
// platforms without native loopback.
var monitorMarkers = []string{"monitor of", ".monitor", "blackhole", "loopback"}

// deviceEntry is the backend-independent view of a device used for selection.
type deviceEntry struct {
	Name    string
	ID      string
	Default bool
	index   int // position in the backend device list
}

// loopbackPlan describes how to open loopback capture on the current platform.
type loopbackPlan struct {
	backends   []malgo.Backend
	listKind   malgo.DeviceType // device list to enumerate
	deviceType malgo.DeviceType // device type passed to InitDevice
	monitors   bool             // only monitor sources qualify
}

// planForOS returns the loopback strategy for goos. Windows has true loopback
// through WASAPI, elsewhere the PulseAudio monitor source of the output is used.
func planForOS(goos string) (loopbackPlan, error) {
	switch goos {
	case osWindows:
		return loopbackPlan{
			backends:   []malgo.Backend{malgo.BackendWasapi},
			listKind:   malgo.Playback,
			deviceType: malgo.Loopback,
		}, nil
	case "linux":
		return loopbackPlan{
			backends:   []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa},
			listKind:   malgo.Capture,
			deviceType: malgo.Capture,
			monitors:   true,
		}, nil
	case "darwin":
		return loopbackPlan{
			backends:   []malgo.Backend{malgo.BackendCoreaudio},
			listKind:   malgo.Capture,
			deviceType: malgo.Capture,
			monitors:   true,
		}, nil
	default:
		return loopbackPlan{}, errors.Newf("loopback capture is not supported on %s", goos).
			Component("audiocore").
			Category(errors.CategoryAudioDevice).
			Context("os", goos).
			Build()
	}
}

func isMonitorName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range monitorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// loopbackEntries converts backend device infos to entries, keeping only
// devices usable for loopback under plan.
func loopbackEntries(infos []malgo.DeviceInfo, plan loopbackPlan) []deviceEntry {
	entries := make([]deviceEntry, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		// Skip the discard/null device
		if strings.Contains(name, "Discard all samples") {
			continue
		}
		if plan.monitors && !isMonitorName(name) {
			continue
		}

		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}
		// WASAPI IDs are UTF-16
		id = strings.ReplaceAll(id, "\x00", "")
		entries = append(entries, deviceEntry{
			Name:    name,
			ID:      id,
			Default: infos[i].IsDefault == 1,
			index:   i,
		})
	}

	// A monitor source is never the default capture device, promote the
	// first one so the default output is followed
	if plan.monitors && len(entries) > 0 && !hasDefault(entries) {
		entries[0].Default = true
	}
	return entries
}

func hasDefault(entries []deviceEntry) bool {
	for _, e := range entries {
		if e.Default {
			return true
		}
	}
	return false
}

// selectDevice picks the device to capture from. An empty preferred name, or
// "default", selects the default device. Otherwise the exact name, then the
// decoded ID, then a case-insensitive substring match is tried.
func selectDevice(entries []deviceEntry, preferred string) (deviceEntry, error) {
	if len(entries) == 0 {
		return deviceEntry{}, fmt.Errorf("no loopback capable output device found")
	}

	if preferred == "" || strings.EqualFold(preferred, "default") {
		for _, e := range entries {
			if e.Default {
				return e, nil
			}
		}
		return entries[0], nil
	}

	for _, e := range entries {
		if e.Name == preferred {
			return e, nil
		}
	}
	for _, e := range entries {
		if e.ID == preferred {
			return e, nil
		}
	}
	lower := strings.ToLower(preferred)
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), lower) {
			return e, nil
		}
	}

	return deviceEntry{}, fmt.Errorf("no output device matching %q among %d devices", preferred, len(entries))
}

// EnumeratePlaybackDevices lists the output devices that loopback capture can
// follow on this platform.
func EnumeratePlaybackDevices() ([]audiocore.DeviceInfo, error) {
	plan, err := planForOS(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(plan.backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(plan.listKind)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Build()
	}

	entries := loopbackEntries(infos, plan)
	devices := make([]audiocore.DeviceInfo, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, audiocore.DeviceInfo{
			Index:   e.index,
			Name:    e.Name,
			ID:      e.ID,
			Default: e.Default,
		})
	}
	return devices, nil
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
