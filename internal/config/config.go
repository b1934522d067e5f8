// Package config holds pvcwatch settings and resolves them from defaults,
// an optional YAML file and the environment. Command-line flags are applied
// last by the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/potooio/pvcwatch/internal/quantity"
)

// Stream modes.
const (
	ModeWatch    = "watch"
	ModeInformer = "informer"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Environment variables read by ApplyEnv.
const (
	EnvNamespace        = "K8S_NAMESPACE"
	EnvWebhookAuthToken = "PVCWATCH_WEBHOOK_AUTH_TOKEN"
)

// WebhookConfig configures the optional webhook sender.
type WebhookConfig struct {
	// URL enables the webhook when set.
	URL                string `json:"url,omitempty"`
	TimeoutSeconds     int    `json:"timeoutSeconds,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty"`
	// MinSeverity is Critical, Warning or Info.
	MinSeverity string `json:"minSeverity,omitempty"`
	AuthToken   string `json:"authToken,omitempty"`
}

// Config is the full pvcwatch configuration.
type Config struct {
	// Namespace to watch. Ignored when AllNamespaces is set.
	Namespace     string `json:"namespace,omitempty"`
	AllNamespaces bool   `json:"allNamespaces,omitempty"`

	// MaxClaims is the capacity limit as a quantity string, e.g. "150Gi".
	MaxClaims string `json:"maxClaims,omitempty"`
	// MaxClaimsFromQuota names a ResourceQuota in Namespace whose hard
	// requests.storage replaces MaxClaims.
	MaxClaimsFromQuota string `json:"maxClaimsFromQuota,omitempty"`

	Kubeconfig    string `json:"kubeconfig,omitempty"`
	LabelSelector string `json:"labelSelector,omitempty"`
	FieldSelector string `json:"fieldSelector,omitempty"`

	// Mode selects a raw watch or a shared informer.
	Mode          string          `json:"mode,omitempty"`
	ResyncPeriod  metav1.Duration `json:"resyncPeriod,omitempty"`
	MaxReconnects int             `json:"maxReconnects,omitempty"`

	// MetricsAddr serves /metrics, /healthz and /readyz. Empty disables.
	MetricsAddr string `json:"metricsAddr,omitempty"`
	LogLevel    string `json:"logLevel,omitempty"`
	Color       string `json:"color,omitempty"`

	Webhook                  WebhookConfig `json:"webhook,omitempty"`
	EmitEvents               bool          `json:"emitEvents,omitempty"`
	NotifyRateLimitPerMinute int           `json:"notifyRateLimitPerMinute,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Namespace:                "default",
		MaxClaims:                "150Gi",
		Mode:                     ModeWatch,
		ResyncPeriod:             metav1.Duration{Duration: 10 * time.Minute},
		LogLevel:                 "info",
		Color:                    ColorAuto,
		Webhook:                  WebhookConfig{TimeoutSeconds: 10, MinSeverity: "Info"},
		NotifyRateLimitPerMinute: 10,
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. getenv is os.Getenv
// outside of tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if ns := getenv(EnvNamespace); ns != "" {
		c.Namespace = ns
	}
	if token := getenv(EnvWebhookAuthToken); token != "" {
		c.Webhook.AuthToken = token
	}
}

// WatchNamespace is the namespace passed to the API, empty for all namespaces.
func (c Config) WatchNamespace() string {
	if c.AllNamespaces {
		return metav1.NamespaceAll
	}
	return c.Namespace
}

// Limit parses MaxClaims.
func (c Config) Limit() (quantity.Quantity, error) {
	return quantity.Parse(c.MaxClaims)
}

// ZapLevel parses LogLevel.
func (c Config) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	limit, err := c.Limit()
	if err != nil {
		return fmt.Errorf("max claims: %w", err)
	}
	if limit.Sign() <= 0 {
		return fmt.Errorf("max claims must be positive, got %s", limit)
	}
	if c.MaxClaimsFromQuota != "" && c.AllNamespaces {
		return fmt.Errorf("max claims from quota needs a single namespace")
	}
	if !c.AllNamespaces && c.Namespace == "" {
		return fmt.Errorf("namespace is required unless all namespaces are watched")
	}
	switch c.Mode {
	case ModeWatch, ModeInformer:
	default:
		return fmt.Errorf("unknown mode %q, want %s or %s", c.Mode, ModeWatch, ModeInformer)
	}
	if c.ResyncPeriod.Duration < 0 {
		return fmt.Errorf("resync period must not be negative")
	}
	if c.MaxReconnects < 0 {
		return fmt.Errorf("max reconnects must not be negative")
	}
	if _, err := c.ZapLevel(); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("unknown color mode %q", c.Color)
	}
	switch c.Webhook.MinSeverity {
	case "", "Critical", "Warning", "Info":
	default:
		return fmt.Errorf("unknown webhook min severity %q", c.Webhook.MinSeverity)
	}
	if c.Webhook.TimeoutSeconds < 0 {
		return fmt.Errorf("webhook timeout must not be negative")
	}
	return nil
}
