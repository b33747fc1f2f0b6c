// config.go: settings struct for peekapi and functions to load it.
package conf

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

// BasicSettings contains the HTTP service settings.
type BasicSettings struct {
	Public     bool   // false answers 403 on /record and /info
	APIKey     string // required by operator endpoints when set
	Host       string // listen address
	Port       int    // listen port
	DeviceName string // overrides the hostname reported by /info
}

// RecordSettings contains the loopback capture settings.
type RecordSettings struct {
	Rate             int           // capture sample rate in Hz
	Duration         int           // seconds kept in the ring buffer
	Gain             float64       // linear gain applied before int16 conversion
	Device           string        // playback device to loop back, empty for system default
	ReconnectDelay   time.Duration // backoff after a failed acquisition
	FailureThreshold int           // consecutive failures before escalating to error
	StopTimeout      time.Duration // upper bound for Stop to wait on the capture loop
}

// TelemetrySettings controls Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool
	DSN     string
}

// NotificationSettings controls capture outage alerts.
type NotificationSettings struct {
	Enabled bool
	URLs    []string      // shoutrrr service URLs
	Timeout time.Duration // per send
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
}

// Settings contains all configuration options for peekapi.
type Settings struct {
	Debug bool

	Basic        BasicSettings
	Record       RecordSettings
	Logging      logger.LoggingConfig
	Telemetry    TelemetrySettings
	Notification NotificationSettings
	Metrics      MetricsSettings

	Version    string `yaml:"-"` // from build
	ConfigFile string `yaml:"-"` // file the settings were read from, runtime value
}

// settingsMutex serializes Load, viper is process global
var settingsMutex sync.Mutex

// Load reads the configuration file and environment variables into Settings.
// An empty configPath searches the default locations and creates a default
// config file when none exists.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configPath); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}
	settings.ConfigFile = viper.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults, env overrides and reads the configuration file.
func initViper(configPath string) error {
	setDefaultConfig(viper.GetViper())

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if _, err := os.Stat(configPath); stderrors.Is(err, os.ErrNotExist) {
			if err := createDefaultConfig(configPath); err != nil {
				return err
			}
		}
		return readConfig()
	}

	viper.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err == nil {
		return nil
	}

	var configFileNotFoundError viper.ConfigFileNotFoundError
	if !stderrors.As(err, &configFileNotFoundError) {
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	defaultPath := filepath.Join(configPaths[0], ConfigFileName)
	if err := createDefaultConfig(defaultPath); err != nil {
		return err
	}
	viper.SetConfigFile(defaultPath)
	return readConfig()
}

func readConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}
	return nil
}

// createDefaultConfig writes the current defaults to configPath
func createDefaultConfig(configPath string) error {
	data, err := DefaultConfigYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Category(errors.CategoryFileIO).
			Context("operation", "write_default_config").
			Build()
	}

	fmt.Println("Created default config file at:", configPath)
	return nil
}

// DefaultConfigYAML renders the built-in defaults as a YAML document
func DefaultConfigYAML() ([]byte, error) {
	v := viper.New()
	setDefaultConfig(v)

	var buf strings.Builder
	buf.WriteString("# peekapi configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v.AllSettings()); err != nil {
		return nil, errors.New(fmt.Errorf("error encoding default config: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "encode_default_config").
			Build()
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}
