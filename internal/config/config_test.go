package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwprov/internal/contact"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OUTPUT_PATH", "START_PORT", "EMAIL_STRATEGY", "EMAIL_SINGLE", "EMAIL_N", "GWPROV_DEALER_PASSWORD"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Run.StartPort)
	assert.Equal(t, "12222", cfg.Workflows.Activation.ZipCode)
	assert.Equal(t, "$20 / mo", cfg.Workflows.Refill.PlanName)
	assert.Equal(t, 5*time.Second, cfg.Workflows.Activation.Params().Settle)
	assert.Equal(t, 3*time.Second, cfg.Workflows.Refill.Params().Settle)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "gwprov.yaml", `
output_dir: /data/gw
gateways:
  "101":
    url: http://101.0.0.1
    local_url: http://192.168.1.101
    password: secret
run:
  start_port: 29
  link_type: internal
collect:
  completion_timeout: 45s
  retries: 1
workflows:
  activation:
    dealer_code: D42
    user: dealer@example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data/gw", cfg.OutputDir)
	assert.Equal(t, 29, cfg.Run.StartPort)
	assert.Equal(t, "D42", cfg.Workflows.Activation.Login.DealerCode)
	// Defaults survive alongside overlaid fields.
	assert.Equal(t, "https://www.modernwirelessusa.com/Account/LogOn", cfg.Workflows.Activation.Login.LoginURL)
	assert.Equal(t, "335656", cfg.Workflows.Activation.PIN)

	opts := cfg.Collect.Options()
	assert.Equal(t, 45*time.Second, opts.CompletionTimeout)
	assert.Equal(t, 2*time.Second, opts.PollInterval)
	assert.Equal(t, 1, opts.Retries)
	assert.Equal(t, 64, opts.Expected)

	creds, err := cfg.Gateway("101")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.101", creds.URL)
	assert.Equal(t, "root", creds.User)
	assert.Equal(t, "secret", creds.Password)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "bad.yaml", "run: [unclosed")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "gwprov.yaml")
	cfg := DefaultConfig()
	cfg.Gateways["105"] = GatewayConfig{URL: "http://105.0.0.1", Password: "pw"}
	cfg.Run.EmailStrategy = "loop"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Gateways, loaded.Gateways)
	assert.Equal(t, cfg.Run, loaded.Run)
	assert.Equal(t, cfg.Workflows, loaded.Workflows)
	assert.Equal(t, cfg.Collect, loaded.Collect)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"start port low", func(c *Config) { c.Run.StartPort = 0 }, "StartPort"},
		{"start port high", func(c *Config) { c.Run.StartPort = 65 }, "StartPort"},
		{"strategy", func(c *Config) { c.Run.EmailStrategy = "random" }, "EmailStrategy"},
		{"email n", func(c *Config) { c.Run.EmailN = 0 }, "EmailN"},
		{"single email", func(c *Config) { c.Run.EmailSingle = "not-an-email" }, "EmailSingle"},
		{"link type", func(c *Config) { c.Run.LinkType = "wifi" }, "LinkType"},
		{"gateway url", func(c *Config) { c.Gateways["101"] = GatewayConfig{URL: "101.0.0.1"} }, "URL"},
		{"settle", func(c *Config) { c.Workflows.Refill.Settle = "soon" }, "Settle"},
		{"zip", func(c *Config) { c.Workflows.Activation.ZipCode = "1222" }, "ZipCode"},
		{"tolerance", func(c *Config) { c.Collect.Tolerance = 65 }, "Tolerance"},
		{"store path", func(c *Config) { c.Store.Path = "" }, "Path"},
		{"output dir", func(c *Config) { c.OutputDir = "" }, "OutputDir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestGatewayLinkTypes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateways["102"] = GatewayConfig{URL: "http://102.0.0.1", LocalURL: "http://192.168.1.102", User: "admin"}
	cfg.Gateways["103"] = GatewayConfig{URL: "http://103.0.0.1"}

	creds, err := cfg.Gateway("102")
	require.NoError(t, err)
	assert.Equal(t, "http://102.0.0.1", creds.URL)
	assert.Equal(t, "admin", creds.User)
	assert.Equal(t, "102", creds.ID)

	cfg.Run.LinkType = LinkInternal
	creds, err = cfg.Gateway("102")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.102", creds.URL)

	creds, err = cfg.Gateway("103")
	require.NoError(t, err)
	assert.Equal(t, "http://103.0.0.1", creds.URL, "no local URL falls back to external")

	_, err = cfg.Gateway("999")
	assert.ErrorIs(t, err, ErrUnknownGateway)

	assert.Equal(t, []string{"102", "103"}, cfg.GatewayIDs())
}

func TestResolvedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = "/srv/out"
	assert.Equal(t, filepath.Join("/srv/out", "gwprov.db"), cfg.StorePath())
	assert.Empty(t, cfg.MetricsPath())

	cfg.Metrics.Textfile = "/var/lib/node_exporter/gwprov.prom"
	assert.Equal(t, "/var/lib/node_exporter/gwprov.prom", cfg.MetricsPath())
}

func TestEmailPolicy(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "emails.json", `["a@x.com", "", "broken", " b@x.com "]`)

	t.Run("single ignores list", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Run.EmailSingle = "one@x.com"
		cfg.Run.EmailsFile = list
		p, err := cfg.EmailPolicy()
		require.NoError(t, err)
		assert.Equal(t, contact.StrategySingle, p.Strategy)
		assert.Nil(t, p.List)
		assert.Equal(t, "one@x.com", p.Select(7))
	})

	t.Run("loop reads and filters list", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Run.EmailStrategy = "loop"
		cfg.Run.EmailsFile = list
		p, err := cfg.EmailPolicy()
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x.com", "b@x.com"}, p.List)
		assert.Equal(t, "b@x.com", p.Select(1))
		assert.Equal(t, "a@x.com", p.Select(2))
	})

	t.Run("missing list falls back to default", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Run.EmailStrategy = "n_times"
		cfg.Run.EmailN = 2
		cfg.Run.EmailsFile = filepath.Join(dir, "absent.json")
		p, err := cfg.EmailPolicy()
		require.NoError(t, err)
		assert.Equal(t, contact.StrategyNTimes, p.Strategy)
		assert.Equal(t, contact.DefaultEmail, p.Select(0))
	})

	t.Run("malformed list", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Run.EmailStrategy = "loop"
		cfg.Run.EmailsFile = writeFile(t, dir, "bad.json", `{"a": 1}`)
		_, err := cfg.EmailPolicy()
		assert.ErrorContains(t, err, "failed to parse email list")
	})
}
