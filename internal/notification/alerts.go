// Package notification sends capture outage alerts to external services.
package notification

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/peekapi/peekapi/internal/audiocore"
	"github.com/peekapi/peekapi/internal/conf"
	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

const (
	// DefaultSendTimeout bounds a single delivery.
	DefaultSendTimeout = 10 * time.Second

	alertQueueSize = 8
)

// Alert kinds.
const (
	AlertUnavailable = "capture_unavailable"
	AlertRestored    = "capture_restored"
)

// Alert is one queued message.
type Alert struct {
	Kind    string
	Title   string
	Message string
}

type alertData struct {
	Host        string
	Device      string
	Failures    int
	Error       string
	Kind        string
	OutageStart time.Time
	Duration    time.Duration
}

var alertTemplates = map[string]*template.Template{
	AlertUnavailable: template.Must(template.New(AlertUnavailable).Parse(
		"Loopback capture on {{.Host}} is unavailable after {{.Failures}} consecutive {{.Kind}} failures: {{.Error}}")),
	AlertRestored: template.Must(template.New(AlertRestored).Parse(
		"Loopback capture on {{.Host}} restored on {{.Device}} after {{.Duration}}")),
}

var alertTitles = map[string]string{
	AlertUnavailable: "peekapi: capture unavailable",
	AlertRestored:    "peekapi: capture restored",
}

// AlertObserver watches capture events and sends one alert when consecutive
// failures reach the threshold, then one more when a device is acquired
// again. Delivery runs on a worker goroutine so the capture loop never waits
// on the network.
type AlertObserver struct {
	sender    Sender
	threshold int
	host      string
	timeout   time.Duration
	log       logger.Logger

	mu          sync.Mutex
	closed      bool
	alerted     bool
	outageStart time.Time
	now         func() time.Time

	queue     chan Alert
	done      chan struct{}
	closeOnce sync.Once

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// AlertOption configures an AlertObserver.
type AlertOption func(*AlertObserver)

// WithHost sets the host name included in messages.
func WithHost(host string) AlertOption {
	return func(a *AlertObserver) {
		if host != "" {
			a.host = host
		}
	}
}

// WithSendTimeout bounds a single delivery.
func WithSendTimeout(d time.Duration) AlertOption {
	return func(a *AlertObserver) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the observer logger.
func WithLogger(log logger.Logger) AlertOption {
	return func(a *AlertObserver) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAlertObserver creates an observer sending through sender and starts its
// delivery worker. Call Close to stop it.
func NewAlertObserver(sender Sender, threshold int, opts ...AlertOption) (*AlertObserver, error) {
	if sender == nil {
		return nil, errors.Newf("alert observer requires a sender").
			Component("notification").
			Category(errors.CategoryValidation).
			Build()
	}
	if threshold < 1 {
		return nil, errors.Newf("alert threshold must be at least 1, got %d", threshold).
			Component("notification").
			Category(errors.CategoryValidation).
			Context("threshold", threshold).
			Build()
	}

	a := &AlertObserver{
		sender:    sender,
		threshold: threshold,
		host:      "localhost",
		timeout:   DefaultSendTimeout,
		log:       logger.Global().Module("notification"),
		now:       time.Now,
		queue:     make(chan Alert, alertQueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	go a.run()
	return a, nil
}

// NewFromSettings builds an AlertObserver from the notification settings.
// It returns nil, nil when alerts are disabled.
func NewFromSettings(settings *conf.Settings, host string, log logger.Logger) (*AlertObserver, error) {
	cfg := settings.Notification
	if !cfg.Enabled || len(cfg.URLs) == 0 {
		return nil, nil
	}

	sender, err := NewShoutrrrSender(cfg.URLs, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	breaker := NewBreakerSender(sender, DefaultCircuitBreakerConfig(), log)
	return NewAlertObserver(breaker, settings.Record.FailureThreshold,
		WithHost(host),
		WithSendTimeout(cfg.Timeout),
		WithLogger(log))
}

// StateChanged implements audiocore.Observer.
func (a *AlertObserver) StateChanged(audiocore.State) {}

// BlockCaptured implements audiocore.Observer.
func (a *AlertObserver) BlockCaptured(int, int) {}

// DeviceFailed implements audiocore.Observer.
func (a *AlertObserver) DeviceFailed(kind audiocore.FailureKind, consecutive int, err error) {
	a.mu.Lock()
	if consecutive == 1 && !a.alerted {
		a.outageStart = a.now()
	}
	if a.alerted || consecutive < a.threshold {
		a.mu.Unlock()
		return
	}
	a.alerted = true
	data := alertData{
		Host:        a.host,
		Failures:    consecutive,
		Kind:        string(kind),
		OutageStart: a.outageStart,
	}
	a.mu.Unlock()

	if err != nil {
		data.Error = logger.RedactSensitiveData(err.Error())
	}
	a.enqueue(AlertUnavailable, data)
}

// DeviceAcquired implements audiocore.Observer.
func (a *AlertObserver) DeviceAcquired(device string) {
	a.mu.Lock()
	if !a.alerted {
		a.mu.Unlock()
		return
	}
	a.alerted = false
	data := alertData{
		Host:     a.host,
		Device:   device,
		Duration: a.now().Sub(a.outageStart).Round(time.Second),
	}
	a.mu.Unlock()

	a.enqueue(AlertRestored, data)
}

func (a *AlertObserver) enqueue(kind string, data alertData) {
	var msg bytes.Buffer
	if err := alertTemplates[kind].Execute(&msg, data); err != nil {
		a.log.Error("failed to render alert", logger.String("kind", kind), logger.Error(err))
		return
	}

	alert := Alert{Kind: kind, Title: alertTitles[kind], Message: msg.String()}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- alert:
	default:
		a.dropped.Add(1)
		a.log.Warn("alert queue full, dropping alert", logger.String("kind", kind))
	}
}

func (a *AlertObserver) run() {
	defer close(a.done)
	for alert := range a.queue {
		a.deliver(alert)
	}
}

func (a *AlertObserver) deliver(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.sender.Send(ctx, alert.Title, alert.Message); err != nil {
		a.failed.Add(1)
		a.log.Error("failed to send alert",
			logger.String("kind", alert.Kind),
			logger.Error(err))
		return
	}
	a.sent.Add(1)
	a.log.Info("alert sent", logger.String("kind", alert.Kind))
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (a *AlertObserver) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}

// Stats returns delivery counters.
func (a *AlertObserver) Stats() (sent, failed, dropped uint64) {
	return a.sent.Load(), a.failed.Load(), a.dropped.Load()
}
