// Package config loads gwprov settings from YAML, the environment and the
// contact email list.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"gwprov/internal/browser"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "gwprov.yaml"

// ErrUnknownGateway is returned for a gateway ID missing from the config.
var ErrUnknownGateway = errors.New("unknown gateway")

// Config holds all gwprov configuration.
type Config struct {
	// Root for checkpoints, run logs, reports and debug logs
	OutputDir string `yaml:"output_dir" validate:"required"`

	Browser   browser.Config           `yaml:"browser"`
	Gateways  map[string]GatewayConfig `yaml:"gateways" validate:"omitempty,dive"`
	Workflows WorkflowsConfig          `yaml:"workflows"`
	Run       RunConfig                `yaml:"run"`
	Collect   CollectConfig            `yaml:"collect"`
	Inventory InventoryConfig          `yaml:"inventory"`
	Store     StoreConfig              `yaml:"store"`
	Metrics   MetricsConfig            `yaml:"metrics"`
	Logging   LoggingConfig            `yaml:"logging"`
}

// InventoryConfig configures the multi-gateway report.
type InventoryConfig struct {
	Parallel int `yaml:"parallel" validate:"gte=1,lte=10"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"` // relative paths resolve under output_dir
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // empty disables the export
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: "output",
		Browser:   browser.DefaultConfig(),
		Gateways:  map[string]GatewayConfig{},
		Workflows: WorkflowsConfig{
			Activation: ActivationConfig{
				Login:        defaultLogin(),
				EntryURL:     "https://www.modernwirelessusa.com/Activate/MobileX/Activation/MOBILEX/00001777",
				ZipCode:      "12222",
				PIN:          "335656",
				ContactPhone: "5555555555",
				Settle:       "5s",
			},
			Refill: RefillConfig{
				Login:    defaultLogin(),
				EntryURL: "https://www.modernwirelessusa.com/Refill/MobileX",
				PlanName: "$20 / mo",
				Settle:   "3s",
			},
		},
		Run: RunConfig{
			StartPort:     1,
			LinkType:      LinkExternal,
			EmailStrategy: "single",
			EmailN:        1,
			EmailsFile:    "emails.json",
		},
		Collect: CollectConfig{
			CompletionTimeout: "90s",
			PollInterval:      "2s",
			Retries:           3,
			Expected:          64,
			Tolerance:         1,
		},
		Inventory: InventoryConfig{Parallel: 2},
		Store: StoreConfig{
			Enabled: true,
			Path:    "gwprov.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file over the defaults. A missing
// file yields the defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorePath resolves the history database path.
func (c *Config) StorePath() string {
	return c.resolve(c.Store.Path)
}

// MetricsPath resolves the textfile export path, or "" when disabled.
func (c *Config) MetricsPath() string {
	if c.Metrics.Textfile == "" {
		return ""
	}
	return c.resolve(c.Metrics.Textfile)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.OutputDir, p)
}

// validate is shared by every Validate call.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("duration", validateDuration)
	_ = validate.RegisterValidation("strategy", validateStrategy)
}

// validateDuration accepts empty strings and anything time.ParseDuration does.
func validateDuration(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	d, err := time.ParseDuration(s)
	return err == nil && d >= 0
}

// duration parses s, returning def when s is empty or malformed.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
