package config

import "gwprov/internal/logging"

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format     string          `yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=json text"` // per-category files
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`                              // Master toggle for per-category files
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`                              // Per-category toggles
}

// Logging converts the section for logging.Initialize.
func (c LoggingConfig) Logging() logging.Config {
	return logging.Config{
		Level:      c.Level,
		DebugMode:  c.DebugMode,
		JSONFormat: c.Format == "json",
		Categories: c.Categories,
	}
}
