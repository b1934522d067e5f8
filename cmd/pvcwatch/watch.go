package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/potooio/pvcwatch/internal/aggregator"
	"github.com/potooio/pvcwatch/internal/config"
	"github.com/potooio/pvcwatch/internal/controller"
	"github.com/potooio/pvcwatch/internal/metrics"
	"github.com/potooio/pvcwatch/internal/notifier"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/quota"
	"github.com/potooio/pvcwatch/internal/reporter"
	"github.com/potooio/pvcwatch/internal/source"
	"github.com/potooio/pvcwatch/internal/types"
)

func watchCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "List claims, then follow their changes against the capacity limit",
		Long: `Watch lists the claims in scope, prints them with their total, then
follows ADDED, MODIFIED and DELETED events. Every event is followed by the
current usage. Crossing --max-claims in either direction prints a notice and,
when configured, creates a Kubernetes Event and calls the webhook.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, o)
		},
	}
	addWatchFlags(cmd.Flags(), o)
	return cmd
}

func runWatch(cmd *cobra.Command, o *options) error {
	cfg, err := resolveConfig(cmd, o)
	if err != nil {
		return err
	}
	logger, err := newLoggerFunc(cfg)
	if err != nil {
		return &configError{err: err}
	}
	defer func() { _ = logger.Sync() }()

	cl, err := getClientFunc(cfg.Kubeconfig)
	if err != nil {
		return types.SourceError("load kubeconfig", err)
	}
	limit, err := resolveLimit(cmd.Context(), cfg, cl, logger)
	if err != nil {
		return err
	}

	dispatcher, err := newDispatcher(cfg, cl, logger)
	if err != nil {
		return &configError{err: err}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	dispatcher.Start(ctx)
	defer func() {
		cancel()
		dispatcher.Close()
	}()

	engine := aggregator.NewEngine(logger, limit)
	rep := reporter.New(logger, cmd.OutOrStdout(), reporterOptions(cfg)...)
	ctrl := controller.New(logger, newProvider(cfg, cl, logger), engine, rep, controller.Options{
		Host:      cl.host,
		Namespace: cfg.WatchNamespace(),
		Notifier:  dispatcher,
	})

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, ctrl.Ready, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Starting pvcwatch",
		zap.String("version", version),
		zap.String("namespace", cfg.WatchNamespace()),
		zap.String("max_claims", limit.String()),
		zap.String("mode", cfg.Mode),
		zap.Int("max_reconnects", cfg.MaxReconnects),
		zap.Bool("emit_events", cfg.EmitEvents),
		zap.Bool("webhook_enabled", cfg.Webhook.URL != ""),
	)
	return ctrl.Run(ctx)
}

// resolveLimit returns the capacity limit, read from a ResourceQuota when
// one is configured.
func resolveLimit(ctx context.Context, cfg config.Config, cl *clients, logger *zap.Logger) (quantity.Quantity, error) {
	if cfg.MaxClaimsFromQuota == "" {
		limit, err := cfg.Limit()
		if err != nil {
			return limit, &configError{err: err}
		}
		return limit, nil
	}

	s, err := quota.Get(ctx, cl.dynamic, cfg.Namespace, cfg.MaxClaimsFromQuota)
	if err != nil {
		return quantity.Quantity{}, err
	}
	if s.Hard.Sign() <= 0 {
		return quantity.Quantity{}, &configError{err: fmt.Errorf("resourcequota %s/%s allows no storage", s.Namespace, s.Name)}
	}
	logger.Info("Using storage limit from ResourceQuota",
		zap.String("quota", s.Namespace+"/"+s.Name),
		zap.String("hard", s.Hard.String()),
		zap.String("used", s.Used.String()),
	)
	return s.Hard, nil
}

func sourceOptions(cfg config.Config) source.Options {
	return source.Options{
		Namespace:     cfg.WatchNamespace(),
		LabelSelector: cfg.LabelSelector,
		FieldSelector: cfg.FieldSelector,
		MaxReconnects: cfg.MaxReconnects,
	}
}

func newProvider(cfg config.Config, cl *clients, logger *zap.Logger) source.Provider {
	if cfg.Mode == config.ModeInformer {
		return source.NewInformer(logger, cl.dynamic, sourceOptions(cfg), cfg.ResyncPeriod.Duration)
	}
	return source.New(logger, cl.dynamic, sourceOptions(cfg))
}

func reporterOptions(cfg config.Config) []reporter.Option {
	var opts []reporter.Option
	switch cfg.Color {
	case config.ColorAlways:
		opts = append(opts, reporter.WithColor(true))
	case config.ColorNever:
		opts = append(opts, reporter.WithColor(false))
	}
	if cfg.AllNamespaces {
		opts = append(opts, reporter.WithNamespaces())
	}
	return opts
}

func newDispatcher(cfg config.Config, cl *clients, logger *zap.Logger) (*notifier.Dispatcher, error) {
	opts := notifier.DefaultDispatcherOptions()
	opts.RateLimitPerMinute = cfg.NotifyRateLimitPerMinute
	opts.EmitEvents = cfg.EmitEvents
	opts.Namespace = cfg.WatchNamespace()

	if cfg.Webhook.URL != "" {
		ws, err := notifier.NewWebhookSender(logger, notifier.WebhookSenderConfig{
			URL:                cfg.Webhook.URL,
			TimeoutSeconds:     cfg.Webhook.TimeoutSeconds,
			InsecureSkipVerify: cfg.Webhook.InsecureSkipVerify,
			MinSeverity:        cfg.Webhook.MinSeverity,
			AuthToken:          cfg.Webhook.AuthToken,
		})
		if err != nil {
			return nil, err
		}
		opts.Senders = append(opts.Senders, ws)
		logger.Info("Webhook sender configured", zap.String("url", notifier.RedactURL(cfg.Webhook.URL)))
	}
	return notifier.NewDispatcher(cl.kube, logger, opts), nil
}
