// conf/utils.go: filesystem helpers for configuration lookup
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/peekapi/peekapi/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml, in
// priority order. If one of them already holds a config file only that one is returned.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-user-config-dir").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		// Portable installs keep config.yaml next to the executable
		configPaths = []string{exeDir, filepath.Join(userConfigDir, AppName)}
	default:
		configPaths = []string{filepath.Join(userConfigDir, AppName), "/etc/" + AppName}
	}

	// The working directory wins when it already has a config file
	searchPaths := configPaths
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append([]string{cwd}, configPaths...)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(filepath.Join(path, ConfigFileName)); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}
