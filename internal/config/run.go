package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"gwprov/internal/collect"
	"gwprov/internal/contact"
	"gwprov/internal/logging"
)

// RunConfig selects where a provisioning run starts and how contact emails
// rotate.
type RunConfig struct {
	StartPort     int    `yaml:"start_port" validate:"min=1,max=64"`
	LinkType      string `yaml:"link_type" validate:"oneof=external internal local"`
	EmailStrategy string `yaml:"email_strategy" validate:"strategy"`
	EmailSingle   string `yaml:"email_single" validate:"omitempty,email"`
	EmailN        int    `yaml:"email_n" validate:"gte=1"`
	EmailsFile    string `yaml:"emails_file"` // JSON array of addresses
	DefaultEmail  string `yaml:"default_email" validate:"omitempty,email"`
}

// CollectConfig bounds dataset collection against a gateway console.
type CollectConfig struct {
	CompletionTimeout string `yaml:"completion_timeout" validate:"duration"`
	PollInterval      string `yaml:"poll_interval" validate:"duration"`
	Retries           int    `yaml:"retries" validate:"gte=0,lte=10"`
	Expected          int    `yaml:"expected" validate:"gte=1,lte=64"`
	Tolerance         int    `yaml:"tolerance" validate:"gte=0,ltefield=Expected"`
}

// Options converts the section to collect.Options.
func (c CollectConfig) Options() collect.Options {
	def := collect.DefaultOptions()
	return collect.Options{
		Expected:          c.Expected,
		Tolerance:         c.Tolerance,
		PollInterval:      duration(c.PollInterval, def.PollInterval),
		CompletionTimeout: duration(c.CompletionTimeout, def.CompletionTimeout),
		Retries:           c.Retries,
	}
}

func validateStrategy(fl validator.FieldLevel) bool {
	_, err := contact.ParseStrategy(fl.Field().String())
	return err == nil
}

// EmailPolicy builds the rotation policy, reading the email list for
// rotating strategies. A missing list file is not an error; the policy then
// falls back to the default address.
func (c *Config) EmailPolicy() (contact.Policy, error) {
	strategy, err := contact.ParseStrategy(c.Run.EmailStrategy)
	if err != nil {
		return contact.Policy{}, err
	}
	p := contact.Policy{
		Strategy: strategy,
		Single:   c.Run.EmailSingle,
		N:        c.Run.EmailN,
		Default:  c.Run.DefaultEmail,
	}
	if strategy == contact.StrategySingle || c.Run.EmailsFile == "" {
		return p, nil
	}
	list, err := LoadEmails(c.Run.EmailsFile)
	if err != nil {
		return contact.Policy{}, err
	}
	p.List = list
	return p, nil
}

// LoadEmails reads a JSON array of addresses, dropping blanks and entries
// without an "@".
func LoadEmails(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if os.IsNotExist(err) {
		logging.Get(logging.CategoryBoot).Warn("email list %s not found; using default address", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read email list: %w", err)
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse email list %s: %w", path, err)
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.TrimSpace(e)
		if e == "" || !strings.Contains(e, "@") {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// applyEnvOverrides applies the launcher's environment contract on top of
// the file settings.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("OUTPUT_PATH"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("START_PORT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid START_PORT %q: %w", v, err)
		}
		c.Run.StartPort = n
	}
	if v := os.Getenv("EMAIL_STRATEGY"); v != "" {
		c.Run.EmailStrategy = v
	}
	if v := os.Getenv("EMAIL_SINGLE"); v != "" {
		c.Run.EmailSingle = v
	}
	if v := os.Getenv("EMAIL_N"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid EMAIL_N %q: %w", v, err)
		}
		c.Run.EmailN = n
	}
	if v := os.Getenv("GWPROV_DEALER_PASSWORD"); v != "" {
		c.Workflows.Activation.Login.Password = v
		c.Workflows.Refill.Login.Password = v
	}
	for id, g := range c.Gateways {
		if v := os.Getenv("GWPROV_GATEWAY_PASSWORD_" + id); v != "" {
			g.Password = v
			c.Gateways[id] = g
		}
	}
	return nil
}
