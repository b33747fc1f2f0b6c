package audiocore

import (
	"fmt"

	"github.com/peekapi/peekapi/internal/errors"
)

var (
	// ErrDeviceUnavailable is returned by Acquire when there is no default
	// output device or the backend refuses to open a loopback stream on it.
	ErrDeviceUnavailable = errors.NewStd("audio device unavailable")

	// ErrDeviceLost is returned by Pull when an open stream breaks, for
	// example after sleep/wake or when the default device changes.
	ErrDeviceLost = errors.NewStd("audio device lost")
)

// DeviceUnavailable wraps cause so that it matches ErrDeviceUnavailable.
// These are plain wrapped errors: they occur on every retry and must not
// reach telemetry individually.
func DeviceUnavailable(cause error) error {
	if cause == nil {
		return ErrDeviceUnavailable
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, cause)
}

// DeviceLost wraps cause so that it matches ErrDeviceLost.
func DeviceLost(cause error) error {
	if cause == nil {
		return ErrDeviceLost
	}
	return fmt.Errorf("%w: %w", ErrDeviceLost, cause)
}
