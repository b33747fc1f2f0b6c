package audiocore

// State is the lifecycle state of the capture loop.
type State int32

const (
	// StateStopped is the initial and terminal state.
	StateStopped State = iota
	// StateAcquiring means the loop is asking the source for a stream.
	StateAcquiring
	// StateStreaming means blocks are being pulled and appended.
	StateStreaming
	// StateCooldown means the loop sleeps before the next acquisition attempt.
	StateCooldown
)

// String returns the lowercase state name used in logs, metrics and JSON.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateAcquiring:
		return "acquiring"
	case StateStreaming:
		return "streaming"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// FailureKind tells where a device failure happened.
type FailureKind string

const (
	FailureAcquire FailureKind = "acquire"
	FailureStream  FailureKind = "stream"
)

// Observer receives capture loop events. Implementations are called from the
// capture goroutine and must not block.
type Observer interface {
	StateChanged(state State)
	DeviceAcquired(device string)
	// DeviceFailed is called for every failure. consecutive is the failure
	// count since the last successful acquisition.
	DeviceFailed(kind FailureKind, consecutive int, err error)
	BlockCaptured(samples, clipped int)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) StateChanged(State)                   {}
func (NopObserver) DeviceAcquired(string)                {}
func (NopObserver) DeviceFailed(FailureKind, int, error) {}
func (NopObserver) BlockCaptured(int, int)               {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) StateChanged(state State) {
	for _, o := range m {
		o.StateChanged(state)
	}
}

func (m MultiObserver) DeviceAcquired(device string) {
	for _, o := range m {
		o.DeviceAcquired(device)
	}
}

func (m MultiObserver) DeviceFailed(kind FailureKind, consecutive int, err error) {
	for _, o := range m {
		o.DeviceFailed(kind, consecutive, err)
	}
}

func (m MultiObserver) BlockCaptured(samples, clipped int) {
	for _, o := range m {
		o.BlockCaptured(samples, clipped)
	}
}

// CombineObservers drops nil entries and returns a single Observer.
func CombineObservers(observers ...Observer) Observer {
	var out MultiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	default:
		return out
	}
}
