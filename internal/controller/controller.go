// Package controller runs the long-lived watch task. It seeds the
// aggregation engine from a snapshot, then applies the change stream one
// event at a time and fans every result out to the reporter, the notifier
// and the metrics.
package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/potooio/pvcwatch/internal/aggregator"
	"github.com/potooio/pvcwatch/internal/metrics"
	"github.com/potooio/pvcwatch/internal/reporter"
	"github.com/potooio/pvcwatch/internal/source"
	"github.com/potooio/pvcwatch/internal/types"
)

// Notifier receives capacity transitions.
type Notifier interface {
	Dispatch(ctx context.Context, t types.Transition) error
}

// Options configures a Controller.
type Options struct {
	// Host is the API server address shown in the header.
	Host string
	// Namespace is the watched namespace, empty for all namespaces.
	Namespace string
	// Notifier is optional.
	Notifier Notifier
}

// Controller owns the aggregate for the lifetime of one watch.
type Controller struct {
	logger   *zap.Logger
	provider source.Provider
	engine   *aggregator.Engine
	reporter *reporter.Reporter
	opts     Options
}

// New creates a Controller.
func New(logger *zap.Logger, provider source.Provider, engine *aggregator.Engine, rep *reporter.Reporter, opts Options) *Controller {
	return &Controller{
		logger:   logger.Named("controller"),
		provider: provider,
		engine:   engine,
		reporter: rep,
		opts:     opts,
	}
}

// Ready reports whether the snapshot has been loaded.
func (c *Controller) Ready() bool {
	return c.engine.Seeded()
}

// Run blocks until the stream ends or ctx is cancelled. A graceful end of
// the stream and cancellation both return nil. Snapshot and stream failures
// are returned wrapped.
func (c *Controller) Run(ctx context.Context) error {
	limit := c.engine.Limit()
	c.reporter.Header(c.opts.Host, c.opts.Namespace, limit)

	listing, err := c.provider.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}
	c.engine.Seed(listing.Claims)
	c.reporter.Listing(c.engine.Claims())
	c.reporter.Capacity(c.engine.Total(), limit)
	c.updateGauges()

	c.logger.Info("Snapshot loaded",
		zap.Int("claims", c.engine.Count()),
		zap.String("total", c.engine.Total().String()),
		zap.String("state", string(c.engine.State())),
		zap.String("resourceVersion", listing.ResourceVersion),
	)

	stream, err := c.provider.Stream(ctx, listing)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open claim stream: %w", err)
	}
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Controller stopped")
			return nil
		case ev, ok := <-stream.Events():
			if !ok {
				return c.finish(ctx, stream)
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) finish(ctx context.Context, stream source.Stream) error {
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			c.logger.Info("Controller stopped")
			return nil
		}
		c.logger.Error("Claim stream failed", zap.Error(err))
		return fmt.Errorf("claim stream: %w", err)
	}
	c.logger.Info("Claim stream ended")
	return nil
}

func (c *Controller) handle(ctx context.Context, ev types.ChangeEvent) {
	res := c.engine.Apply(ev)
	metrics.Record(res)

	c.reporter.Event(res)
	if res.Inconsistent != "" {
		c.reporter.Inconsistent(res.Inconsistent)
	}
	if res.Transition != nil {
		c.reporter.Transition(*res.Transition)
		if c.opts.Notifier != nil {
			if err := c.opts.Notifier.Dispatch(ctx, *res.Transition); err != nil {
				c.logger.Warn("Failed to dispatch transition", zap.Error(err))
			}
		}
	}
	c.reporter.Capacity(res.Total, c.engine.Limit())
	c.updateGauges()
}

func (c *Controller) updateGauges() {
	metrics.SetSnapshot(c.engine.Total(), c.engine.Limit(), c.engine.Count(), c.engine.State())
}
