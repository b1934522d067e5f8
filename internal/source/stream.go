package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/potooio/pvcwatch/internal/types"
)

const defaultBufferSize = 100

// Stream delivers claim changes in the order the API reported them.
type Stream interface {
	// Events is closed when the stream ends.
	Events() <-chan types.ChangeEvent
	// Err reports why the stream ended. Only valid after Events is closed;
	// nil means the server closed the stream or the context was cancelled.
	Err() error
	// Stop ends the stream and waits for its goroutine to exit.
	Stop()
}

// Provider produces an initial listing and the change stream that follows it.
type Provider interface {
	Snapshot(ctx context.Context) (Listing, error)
	Stream(ctx context.Context, from Listing) (Stream, error)
}

// DefaultBackoff is used between watch reconnects when none is configured.
func DefaultBackoff() wait.Backoff {
	return wait.Backoff{
		Duration: time.Second,
		Factor:   2,
		Jitter:   0.1,
		Steps:    6,
		Cap:      30 * time.Second,
	}
}

var _ Provider = (*Source)(nil)

// Stream opens a WatchStream starting at the listing's resource version.
func (s *Source) Stream(ctx context.Context, from Listing) (Stream, error) {
	ws, err := s.Watch(ctx, from.ResourceVersion)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// WatchStream converts a raw API watch into ChangeEvents on one goroutine.
type WatchStream struct {
	logger  *zap.Logger
	src     *Source
	events  chan types.ChangeEvent
	cancel  context.CancelFunc
	done    chan struct{}
	backoff wait.Backoff

	mu     sync.Mutex
	err    error
	lastRV string
}

// Watch opens a watch from resourceVersion. Failure to open is returned
// immediately as ErrSourceUnavailable.
func (s *Source) Watch(ctx context.Context, resourceVersion string) (*WatchStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := &WatchStream{
		logger:  s.logger.Named("watch"),
		src:     s,
		events:  make(chan types.ChangeEvent, s.bufferSize()),
		cancel:  cancel,
		done:    make(chan struct{}),
		backoff: s.opts.Backoff,
		lastRV:  resourceVersion,
	}
	if w.backoff.Duration == 0 {
		w.backoff = DefaultBackoff()
	}

	wi, err := w.open(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go w.run(ctx, wi)
	return w, nil
}

func (s *Source) bufferSize() int {
	if s.opts.BufferSize > 0 {
		return s.opts.BufferSize
	}
	return defaultBufferSize
}

func (w *WatchStream) Events() <-chan types.ChangeEvent { return w.events }

func (w *WatchStream) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *WatchStream) Stop() {
	w.cancel()
	<-w.done
}

func (w *WatchStream) open(ctx context.Context) (watch.Interface, error) {
	opts := w.src.opts.listOptions()
	opts.ResourceVersion = w.resourceVersion()
	opts.AllowWatchBookmarks = true

	wi, err := w.src.resource().Watch(ctx, opts)
	if err != nil {
		return nil, types.SourceError("watch claims", err)
	}
	w.logger.Debug("Watch opened",
		zap.String("namespace", w.src.opts.Namespace),
		zap.String("resource_version", opts.ResourceVersion),
	)
	return wi, nil
}

func (w *WatchStream) resourceVersion() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRV
}

func (w *WatchStream) setResourceVersion(rv string) {
	if rv == "" {
		return
	}
	w.mu.Lock()
	w.lastRV = rv
	w.mu.Unlock()
}

func (w *WatchStream) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *WatchStream) run(ctx context.Context, wi watch.Interface) {
	defer close(w.done)
	defer close(w.events)

	reconnects := 0
	backoff := w.backoff
	for {
		delivered, err := w.drain(ctx, wi)
		wi.Stop()
		if err != nil {
			w.fail(err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if delivered {
			reconnects = 0
			backoff = w.backoff
		}
		if reconnects >= w.src.opts.MaxReconnects {
			w.logger.Info("Watch closed by server")
			return
		}
		reconnects++
		delay := backoff.Step()
		w.logger.Info("Watch closed by server, reconnecting",
			zap.Int("attempt", reconnects),
			zap.Duration("delay", delay),
			zap.String("resource_version", w.resourceVersion()),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		wi, err = w.open(ctx)
		if err != nil {
			w.fail(err)
			return
		}
	}
}

// drain forwards events from one watch until it closes. delivered reports
// whether at least one event was forwarded.
func (w *WatchStream) drain(ctx context.Context, wi watch.Interface) (delivered bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return delivered, nil
		case ev, ok := <-wi.ResultChan():
			if !ok {
				return delivered, nil
			}
			switch ev.Type {
			case watch.Added, watch.Modified, watch.Deleted:
				obj, ok := ev.Object.(*unstructured.Unstructured)
				if !ok {
					return delivered, types.SourceError("watch claims", fmt.Errorf("unexpected object type %T", ev.Object))
				}
				claim, err := ClaimFromUnstructured(obj)
				if err != nil {
					return delivered, err
				}
				w.setResourceVersion(claim.ResourceVersion)
				select {
				case w.events <- types.ChangeEvent{Type: types.EventType(ev.Type), Claim: claim}:
					delivered = true
				case <-ctx.Done():
					return delivered, nil
				}
			case watch.Bookmark:
				if obj, ok := ev.Object.(*unstructured.Unstructured); ok {
					w.setResourceVersion(obj.GetResourceVersion())
				}
			case watch.Error:
				return delivered, types.SourceError("watch claims", apierrors.FromObject(ev.Object))
			default:
				w.logger.Debug("Ignoring watch event", zap.String("type", string(ev.Type)))
			}
		}
	}
}
