package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/potooio/pvcwatch/internal/types"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = time.Hour
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// RateLimitPerMinute caps transitions delivered per namespace. Zero or
	// negative disables the limit.
	RateLimitPerMinute int
	// EmitEvents creates a Kubernetes Event for every delivered transition.
	EmitEvents bool
	// Namespace is the watched namespace. When empty, events go to the
	// namespace of the claim that caused the transition.
	Namespace string
	// Component is reported as the event source.
	Component string
	Senders   []Sender
}

// DefaultDispatcherOptions returns the options used by the CLI before flags
// are applied.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		RateLimitPerMinute: 10,
		EmitEvents:         true,
		Namespace:          metav1.NamespaceDefault,
		Component:          "pvcwatch",
	}
}

// Dispatcher fans a capacity transition out to a Kubernetes Event and to
// every external sender whose severity threshold it meets.
type Dispatcher struct {
	logger  *zap.Logger
	events  kubernetes.Interface
	opts    DispatcherOptions
	limiter *namespaceLimiter
	builder *EventBuilder
}

// NewDispatcher creates a Dispatcher. client may be nil when
// opts.EmitEvents is false.
func NewDispatcher(client kubernetes.Interface, logger *zap.Logger, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		logger:  logger.Named("dispatcher"),
		events:  client,
		opts:    opts,
		limiter: newNamespaceLimiter(opts.RateLimitPerMinute),
		builder: NewEventBuilder(opts.Component),
	}
}

// Start launches the senders and the limiter sweep. It does not block.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.sweep(ctx)
	for _, s := range d.opts.Senders {
		s.Start(ctx)
		d.logger.Info("Started external sender", zap.String("sender", s.Name()))
	}
}

// Close waits for buffering senders to drain. The context given to Start
// must already be cancelled.
func (d *Dispatcher) Close() {
	for _, s := range d.opts.Senders {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// Dispatch delivers one transition. Nothing is delivered, and no rate
// budget is spent, when neither Events nor any sender want it. Repeated
// transitions into the same state are rate limited per namespace and
// dropped with a nil error. An Event creation failure is returned only
// after the external senders have been handed the transition.
func (d *Dispatcher) Dispatch(ctx context.Context, t types.Transition) error {
	ns := d.namespaceFor(t)
	log := d.logger.With(zap.String("namespace", ns), zap.String("to", string(t.To)))

	senders := d.interestedSenders(t.To.Severity())
	emit := d.opts.EmitEvents && d.events != nil
	if !emit && len(senders) == 0 {
		log.Debug("No receiver for transition")
		return nil
	}

	if !d.limiter.Admit(ns, t.To) {
		notificationsDroppedTotal.WithLabelValues("rate_limited").Inc()
		log.Debug("Namespace rate limited, dropping transition")
		return nil
	}

	var err error
	if emit {
		err = d.emitEvent(ctx, t, ns)
	}
	d.notifySenders(ctx, senders, t, ns)

	log.Info("Dispatched capacity transition",
		zap.String("from", string(t.From)),
		zap.String("total", t.Total.String()),
		zap.String("limit", t.Limit.String()))
	return err
}

func (d *Dispatcher) emitEvent(ctx context.Context, t types.Transition, ns string) error {
	event := d.builder.BuildEvent(t, ns)
	if _, err := d.events.CoreV1().Events(ns).Create(ctx, event, metav1.CreateOptions{}); err != nil {
		notificationsDroppedTotal.WithLabelValues("event_error").Inc()
		d.logger.Error("Failed to create event", zap.String("namespace", ns), zap.Error(err))
		return fmt.Errorf("create event in %s: %w", ns, err)
	}
	return nil
}

func (d *Dispatcher) interestedSenders(severity types.Severity) []Sender {
	var out []Sender
	for _, s := range d.opts.Senders {
		if s.ShouldSend(severity) {
			out = append(out, s)
		}
	}
	return out
}

// notifySenders enqueues the transition on each sender. Enqueue failures
// are logged only.
func (d *Dispatcher) notifySenders(ctx context.Context, senders []Sender, t types.Transition, ns string) {
	if len(senders) == 0 {
		return
	}
	data := d.builder.BuildStructuredData(t, ns)
	for _, s := range senders {
		if err := s.Send(ctx, data); err != nil {
			d.logger.Error("External sender enqueue failed",
				zap.String("sender", s.Name()),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) namespaceFor(t types.Transition) string {
	switch {
	case d.opts.Namespace != "":
		return d.opts.Namespace
	case t.Claim.Namespace != "":
		return t.Claim.Namespace
	default:
		return metav1.NamespaceDefault
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.limiter.Forget(limiterIdleTimeout)
		}
	}
}
