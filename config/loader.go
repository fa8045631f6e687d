package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "council.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/council"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
	// APIKeyEnv is the environment variable holding the default credential.
	APIKeyEnv = "OPENROUTER_API_KEY"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/council/config.yaml)
// 3. Project config (council.yaml in the working directory)
// 4. OPENROUTER_API_KEY environment variable
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to load user config",
			slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	if projectConfig, err := LoadFromFile(ProjectConfigFile); err == nil {
		l.logger.Debug("Loaded project config", slog.String("path", ProjectConfigFile))
		config.Merge(projectConfig)
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to load project config",
			slog.String("path", ProjectConfigFile), slog.String("error", err.Error()))
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		config.Gateway.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// userConfigPath returns the user-level config file path.
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return UserConfigFile
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}
