package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/potooio/pvcwatch/internal/types"
)

const defaultSyncTimeout = 30 * time.Second

// Informer is a Provider backed by a filtered dynamic shared informer.
// Snapshot starts the informer and lists its synced cache; Stream returns
// the changes observed after the initial list.
type Informer struct {
	logger      *zap.Logger
	client      dynamic.Interface
	opts        Options
	resync      time.Duration
	syncTimeout time.Duration

	mu     sync.Mutex
	stream *InformerStream
}

var _ Provider = (*Informer)(nil)

// NewInformer creates an informer-backed Provider. resync of zero disables
// periodic resyncs.
func NewInformer(logger *zap.Logger, client dynamic.Interface, opts Options, resync time.Duration) *Informer {
	return &Informer{
		logger:      logger.Named("informer"),
		client:      client,
		opts:        opts,
		resync:      resync,
		syncTimeout: defaultSyncTimeout,
	}
}

// SetSyncTimeout bounds how long Snapshot waits for the initial list.
func (i *Informer) SetSyncTimeout(d time.Duration) {
	i.syncTimeout = d
}

// Snapshot starts the informer, waits for its cache to sync and returns the
// cached claims sorted by namespace and name.
func (i *Informer) Snapshot(ctx context.Context) (Listing, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stream != nil {
		return Listing{}, errors.New("informer already started")
	}

	st := i.start(ctx)

	syncCtx, cancel := context.WithTimeout(ctx, i.syncTimeout)
	defer cancel()
	if !cache.WaitForCacheSync(syncCtx.Done(), st.informer.HasSynced) {
		st.Stop()
		return Listing{}, types.SourceError("sync claims informer", syncCtx.Err())
	}

	objs := st.informer.GetStore().List()
	listing := Listing{
		Claims:          make([]types.ClaimRecord, 0, len(objs)),
		ResourceVersion: st.informer.LastSyncResourceVersion(),
	}
	for _, obj := range objs {
		u, ok := obj.(*unstructured.Unstructured)
		if !ok {
			continue
		}
		c, err := ClaimFromUnstructured(u)
		if err != nil {
			st.Stop()
			return Listing{}, fmt.Errorf("snapshot: %w", err)
		}
		listing.Claims = append(listing.Claims, c)
	}
	sort.Slice(listing.Claims, func(a, b int) bool {
		if listing.Claims[a].Namespace != listing.Claims[b].Namespace {
			return listing.Claims[a].Namespace < listing.Claims[b].Namespace
		}
		return listing.Claims[a].Name < listing.Claims[b].Name
	})

	i.stream = st
	i.logger.Info("Informer cache synced",
		zap.String("namespace", i.opts.Namespace),
		zap.Int("count", len(listing.Claims)),
	)
	return listing, nil
}

// Stream returns the stream started by Snapshot.
func (i *Informer) Stream(_ context.Context, _ Listing) (Stream, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stream == nil {
		return nil, errors.New("informer not synced, call Snapshot first")
	}
	return i.stream, nil
}

func (i *Informer) start(ctx context.Context) *InformerStream {
	ctx, cancel := context.WithCancel(ctx)

	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(
		i.client,
		i.resync,
		i.opts.Namespace,
		func(o *metav1.ListOptions) {
			o.LabelSelector = i.opts.LabelSelector
			o.FieldSelector = i.opts.FieldSelector
		},
	)
	informer := factory.ForResource(ClaimGVR).Informer()

	bufferSize := i.opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	st := &InformerStream{
		logger:   i.logger,
		informer: informer,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan types.ChangeEvent, bufferSize),
		done:     make(chan struct{}),
	}

	if err := informer.SetWatchErrorHandler(func(_ *cache.Reflector, err error) {
		i.logger.Warn("Claim watch error, informer will retry", zap.Error(err))
	}); err != nil {
		i.logger.Debug("Watch error handler not set", zap.Error(err))
	}

	if _, err := informer.AddEventHandler(cache.ResourceEventHandlerDetailedFuncs{
		AddFunc: func(obj interface{}, isInInitialList bool) {
			// Initial list items are delivered through Snapshot.
			if isInInitialList {
				return
			}
			st.push(types.EventAdded, obj)
		},
		UpdateFunc: func(oldObj, newObj interface{}) {
			if sameResourceVersion(oldObj, newObj) {
				return
			}
			st.push(types.EventModified, newObj)
		},
		DeleteFunc: func(obj interface{}) {
			if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
				obj = tombstone.Obj
			}
			st.push(types.EventDeleted, obj)
		},
	}); err != nil {
		// Only fails on a stopped informer, which cannot happen before Run.
		i.logger.Error("Failed to add event handler", zap.Error(err))
	}

	go st.run()
	return st
}

func sameResourceVersion(oldObj, newObj interface{}) bool {
	o, ok := oldObj.(*unstructured.Unstructured)
	if !ok {
		return false
	}
	n, ok := newObj.(*unstructured.Unstructured)
	if !ok {
		return false
	}
	return o.GetResourceVersion() == n.GetResourceVersion()
}

// InformerStream forwards informer notifications as ChangeEvents. It ends
// only when stopped, its context is cancelled or a claim fails to parse.
type InformerStream struct {
	logger   *zap.Logger
	informer cache.SharedIndexInformer
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan types.ChangeEvent
	done     chan struct{}

	// mu guards closed against in-flight sends from handlers.
	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func (s *InformerStream) Events() <-chan types.ChangeEvent { return s.events }

func (s *InformerStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *InformerStream) Stop() {
	s.cancel()
	<-s.done
}

func (s *InformerStream) run() {
	defer close(s.done)
	s.informer.Run(s.ctx.Done())

	s.mu.Lock()
	s.closed = true
	close(s.events)
	s.mu.Unlock()
}

func (s *InformerStream) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.cancel()
}

func (s *InformerStream) push(t types.EventType, obj interface{}) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		s.logger.Warn("Unexpected object type from informer",
			zap.String("event", string(t)),
			zap.String("type", fmt.Sprintf("%T", obj)),
		)
		return
	}
	claim, err := ClaimFromUnstructured(u)
	if err != nil {
		s.fail(err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- types.ChangeEvent{Type: t, Claim: claim}:
	case <-s.ctx.Done():
	}
}
