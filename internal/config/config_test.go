package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potooio/pvcwatch/internal/quantity"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pvcwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "default", cfg.Namespace)
	assert.Equal(t, "150Gi", cfg.MaxClaims)
	assert.Equal(t, ModeWatch, cfg.Mode)
	assert.Equal(t, "Info", cfg.Webhook.MinSeverity)
	assert.False(t, cfg.EmitEvents)
	require.NoError(t, cfg.Validate())

	limit, err := cfg.Limit()
	require.NoError(t, err)
	assert.True(t, limit.Equal(quantity.MustParse("150Gi")))
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
namespace: storage
maxClaims: 2Ti
mode: informer
resyncPeriod: 30s
emitEvents: true
webhook:
  url: https://hooks.example.com/pvc
  minSeverity: Warning
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "storage", cfg.Namespace)
	assert.Equal(t, "2Ti", cfg.MaxClaims)
	assert.Equal(t, ModeInformer, cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.ResyncPeriod.Duration)
	assert.True(t, cfg.EmitEvents)
	assert.Equal(t, "https://hooks.example.com/pvc", cfg.Webhook.URL)
	assert.Equal(t, "Warning", cfg.Webhook.MinSeverity)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10, cfg.Webhook.TimeoutSeconds)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.NotifyRateLimitPerMinute)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "namespce: typo\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvNamespace:        "from-env",
		EnvWebhookAuthToken: "s3cret",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "from-env", cfg.Namespace)
	assert.Equal(t, "s3cret", cfg.Webhook.AuthToken)
}

func TestApplyEnv_EmptyKeepsValues(t *testing.T) {
	cfg := Default()
	cfg.Webhook.AuthToken = "from-file"
	cfg.ApplyEnv(func(string) string { return "" })

	assert.Equal(t, "default", cfg.Namespace)
	assert.Equal(t, "from-file", cfg.Webhook.AuthToken)
}

func TestWatchNamespace(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "default", cfg.WatchNamespace())

	cfg.AllNamespaces = true
	assert.Equal(t, "", cfg.WatchNamespace())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad limit", func(c *Config) { c.MaxClaims = "lots" }, "max claims"},
		{"zero limit", func(c *Config) { c.MaxClaims = "0" }, "must be positive"},
		{"negative limit", func(c *Config) { c.MaxClaims = "-1Gi" }, "must be positive"},
		{"empty namespace", func(c *Config) { c.Namespace = "" }, "namespace is required"},
		{"bad mode", func(c *Config) { c.Mode = "poll" }, "unknown mode"},
		{"negative resync", func(c *Config) { c.ResyncPeriod.Duration = -time.Second }, "resync"},
		{"negative reconnects", func(c *Config) { c.MaxReconnects = -1 }, "reconnects"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"bad color", func(c *Config) { c.Color = "sometimes" }, "color"},
		{"bad severity", func(c *Config) { c.Webhook.MinSeverity = "Urgent" }, "severity"},
		{"quota with all namespaces", func(c *Config) { c.MaxClaimsFromQuota, c.AllNamespaces = "storage", true }, "single namespace"},
		{"negative timeout", func(c *Config) { c.Webhook.TimeoutSeconds = -5 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_BadLimitIsParseError(t *testing.T) {
	cfg := Default()
	cfg.MaxClaims = "ten gigs"

	var perr *quantity.ParseError
	require.ErrorAs(t, cfg.Validate(), &perr)
	assert.Equal(t, "ten gigs", perr.Value)
}

func TestValidate_AllNamespacesWithoutNamespace(t *testing.T) {
	cfg := Default()
	cfg.Namespace = ""
	cfg.AllNamespaces = true
	require.NoError(t, cfg.Validate())
}
