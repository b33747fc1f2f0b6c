// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateBasicSettings(&settings.Basic); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := ValidateRecordSettings(&settings.Record); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateNotificationSettings(&settings.Notification); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry enabled but no Sentry DSN configured")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBasicSettings(settings *BasicSettings) error {
	var errs []string

	if settings.Port < 1 || settings.Port > 65535 {
		errs = append(errs, fmt.Sprintf("basic.port must be between 1 and 65535, got %d", settings.Port))
	}
	if strings.TrimSpace(settings.Host) == "" {
		errs = append(errs, "basic.host must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("basic settings errors: %v", errs)
	}
	return nil
}

// ValidateRecordSettings checks the capture parameters. Also used for runtime reconfiguration.
func ValidateRecordSettings(settings *RecordSettings) error {
	var errs []string

	if settings.Rate < MinSampleRate || settings.Rate > MaxSampleRate {
		errs = append(errs, fmt.Sprintf("record.rate must be between %d and %d Hz, got %d", MinSampleRate, MaxSampleRate, settings.Rate))
	}
	if settings.Duration < MinDuration || settings.Duration > MaxDuration {
		errs = append(errs, fmt.Sprintf("record.duration must be between %d and %d seconds, got %d", MinDuration, MaxDuration, settings.Duration))
	}
	if err := ValidateGain(settings.Gain); err != nil {
		errs = append(errs, err.Error())
	}
	if settings.ReconnectDelay < 0 {
		errs = append(errs, "record.reconnectdelay must not be negative")
	}
	if settings.FailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("record.failurethreshold must be at least 1, got %d", settings.FailureThreshold))
	}
	if settings.StopTimeout <= 0 {
		errs = append(errs, "record.stoptimeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("record settings errors: %v", errs)
	}
	return nil
}

// ValidateGain checks that gain is a finite value in (0, MaxGain]
func ValidateGain(gain float64) error {
	if math.IsNaN(gain) || math.IsInf(gain, 0) || gain <= 0 || gain > MaxGain {
		return fmt.Errorf("record.gain must be greater than 0 and at most %g, got %g", MaxGain, gain)
	}
	return nil
}

func validateNotificationSettings(settings *NotificationSettings) error {
	if !settings.Enabled {
		return nil
	}

	var errs []string
	if len(settings.URLs) == 0 {
		errs = append(errs, "notification enabled but no service URLs configured")
	}
	for i, raw := range settings.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			// Never echo the URL, it usually carries a token
			errs = append(errs, fmt.Sprintf("notification.urls[%d] is not a valid service URL", i))
		}
	}
	if settings.Timeout <= 0 {
		errs = append(errs, "notification.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification settings errors: %v", errs)
	}
	return nil
}
