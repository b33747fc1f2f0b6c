// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/peekapi/peekapi/internal/logger"
)

// setDefaultConfig sets default values for every known key.
// Keys without a default are invisible to environment overrides.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("basic.public", true)
	v.SetDefault("basic.apikey", "")
	v.SetDefault("basic.host", "0.0.0.0")
	v.SetDefault("basic.port", 1920)
	v.SetDefault("basic.devicename", "")

	v.SetDefault("record.rate", 44100)
	v.SetDefault("record.duration", 20)
	v.SetDefault("record.gain", 20.0)
	v.SetDefault("record.device", "")
	v.SetDefault("record.reconnectdelay", "2s")
	v.SetDefault("record.failurethreshold", 5)
	v.SetDefault("record.stoptimeout", "5s")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", logger.DefaultCompressLogs)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", "10s")

	v.SetDefault("metrics.enabled", true)
}
