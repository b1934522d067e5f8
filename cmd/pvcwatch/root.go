package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/potooio/pvcwatch/internal/config"
)

// options holds raw flag values. Only flags the user set override the
// config file and environment.
type options struct {
	configFile    string
	namespace     string
	allNamespaces bool
	maxClaims     string
	quotaName     string
	kubeconfig    string
	labelSelector string
	fieldSelector string
	logLevel      string
	color         string

	mode               string
	resyncPeriod       time.Duration
	maxReconnects      int
	metricsAddr        string
	webhookURL         string
	webhookTimeout     int
	webhookInsecure    bool
	webhookMinSeverity string
	webhookAuthToken   string
	emitEvents         bool
	notifyRateLimit    int

	output string
}

// newLoggerFunc builds the process logger. It can be overridden in tests.
var newLoggerFunc = newLogger

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConfig.Level = zap.NewAtomicLevelAt(level)
	return logConfig.Build()
}

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "pvcwatch",
		Short: "Watch the storage claimed by PersistentVolumeClaims",
		Long: `pvcwatch lists the PersistentVolumeClaims in scope, then follows their
changes and keeps a running total of the storage they request. It reports
when the total crosses --max-claims and when it falls back under it.

Without a subcommand pvcwatch runs "watch".`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, o)
		},
	}

	addScopeFlags(rootCmd.PersistentFlags(), o)
	addWatchFlags(rootCmd.Flags(), o)

	rootCmd.AddCommand(watchCmd(o))
	rootCmd.AddCommand(listCmd(o))
	return rootCmd
}

func addScopeFlags(fs *pflag.FlagSet, o *options) {
	d := config.Default()
	fs.StringVar(&o.configFile, "config", "", "Path to a YAML config file")
	fs.StringVarP(&o.namespace, "namespace", "n", d.Namespace, "Namespace to watch")
	fs.BoolVarP(&o.allNamespaces, "all-namespaces", "A", false, "Watch claims in all namespaces")
	fs.StringVar(&o.maxClaims, "max-claims", d.MaxClaims, "Maximum total storage claimed before alerting")
	fs.StringVar(&o.quotaName, "max-claims-from-quota", "", "Take the limit from the hard requests.storage of this ResourceQuota in the watched namespace")
	fs.StringVar(&o.kubeconfig, "kubeconfig", "", "Path to kubeconfig (defaults to KUBECONFIG, ~/.kube/config, then in-cluster)")
	fs.StringVarP(&o.labelSelector, "selector", "l", "", "Label selector to filter claims")
	fs.StringVarP(&o.fieldSelector, "field-selector", "f", "", "Field selector to filter claims")
	fs.StringVar(&o.logLevel, "log-level", d.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&o.color, "color", d.Color, "Color transition lines: auto, always, never")
}

func addWatchFlags(fs *pflag.FlagSet, o *options) {
	d := config.Default()
	fs.StringVar(&o.mode, "mode", d.Mode, "Change stream: watch or informer")
	fs.DurationVar(&o.resyncPeriod, "resync-period", d.ResyncPeriod.Duration, "Informer resync period")
	fs.IntVar(&o.maxReconnects, "max-reconnects", d.MaxReconnects, "Times to re-open a watch closed by the server")
	fs.StringVar(&o.metricsAddr, "metrics-bind-address", d.MetricsAddr, "Address for /metrics, /healthz and /readyz (empty disables)")
	fs.StringVar(&o.webhookURL, "webhook-url", "", "Webhook URL for capacity transitions (empty disables)")
	fs.IntVar(&o.webhookTimeout, "webhook-timeout", d.Webhook.TimeoutSeconds, "Webhook request timeout in seconds")
	fs.BoolVar(&o.webhookInsecure, "webhook-insecure-skip-verify", false, "Skip TLS verification for the webhook")
	fs.StringVar(&o.webhookMinSeverity, "webhook-min-severity", d.Webhook.MinSeverity, "Minimum severity sent to the webhook: Critical, Warning, Info")
	fs.StringVar(&o.webhookAuthToken, "webhook-auth-token", "", "Bearer token for the webhook (prefer "+config.EnvWebhookAuthToken+")")
	fs.BoolVar(&o.emitEvents, "emit-events", d.EmitEvents, "Create a Kubernetes Event on every capacity transition")
	fs.IntVar(&o.notifyRateLimit, "notify-rate-limit", d.NotifyRateLimitPerMinute, "Transitions notified per namespace per minute (0 disables the limit)")
}

// resolveConfig layers defaults, the config file, the environment and the
// flags the user set, then validates the result.
func resolveConfig(cmd *cobra.Command, o *options) (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return cfg, &configError{err: err}
	}
	cfg.ApplyEnv(os.Getenv)

	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("namespace", func() { cfg.Namespace = o.namespace })
	set("all-namespaces", func() { cfg.AllNamespaces = o.allNamespaces })
	set("max-claims", func() { cfg.MaxClaims = o.maxClaims })
	set("max-claims-from-quota", func() { cfg.MaxClaimsFromQuota = o.quotaName })
	set("kubeconfig", func() { cfg.Kubeconfig = o.kubeconfig })
	set("selector", func() { cfg.LabelSelector = o.labelSelector })
	set("field-selector", func() { cfg.FieldSelector = o.fieldSelector })
	set("log-level", func() { cfg.LogLevel = o.logLevel })
	set("color", func() { cfg.Color = o.color })
	set("mode", func() { cfg.Mode = o.mode })
	set("resync-period", func() { cfg.ResyncPeriod.Duration = o.resyncPeriod })
	set("max-reconnects", func() { cfg.MaxReconnects = o.maxReconnects })
	set("metrics-bind-address", func() { cfg.MetricsAddr = o.metricsAddr })
	set("webhook-url", func() { cfg.Webhook.URL = o.webhookURL })
	set("webhook-timeout", func() { cfg.Webhook.TimeoutSeconds = o.webhookTimeout })
	set("webhook-insecure-skip-verify", func() { cfg.Webhook.InsecureSkipVerify = o.webhookInsecure })
	set("webhook-min-severity", func() { cfg.Webhook.MinSeverity = o.webhookMinSeverity })
	set("webhook-auth-token", func() { cfg.Webhook.AuthToken = o.webhookAuthToken })
	set("emit-events", func() { cfg.EmitEvents = o.emitEvents })
	set("notify-rate-limit", func() { cfg.NotifyRateLimitPerMinute = o.notifyRateLimit })

	if err := cfg.Validate(); err != nil {
		return cfg, &configError{err: err}
	}
	return cfg, nil
}
