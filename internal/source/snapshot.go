package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"

	"github.com/potooio/pvcwatch/internal/types"
)

// Options scopes which claims are listed and watched.
type Options struct {
	// Namespace to watch. Empty means all namespaces.
	Namespace     string
	LabelSelector string
	FieldSelector string

	// MaxReconnects is how many times a watch closed by the server is
	// re-opened. Zero ends the stream on the first close.
	MaxReconnects int
	// Backoff paces reconnect attempts. Zero value uses DefaultBackoff.
	Backoff wait.Backoff
	// BufferSize of the event channel. Zero uses defaultBufferSize.
	BufferSize int
}

func (o Options) listOptions() metav1.ListOptions {
	return metav1.ListOptions{
		LabelSelector: o.LabelSelector,
		FieldSelector: o.FieldSelector,
	}
}

// Listing is a point-in-time view of all claims in scope.
type Listing struct {
	// Claims in the order the API returned them.
	Claims []types.ClaimRecord
	// ResourceVersion of the list, used to start a watch without gaps.
	ResourceVersion string
}

// Source reads PersistentVolumeClaims through the dynamic client.
type Source struct {
	logger *zap.Logger
	client dynamic.Interface
	opts   Options
}

// New creates a Source for the given scope.
func New(logger *zap.Logger, client dynamic.Interface, opts Options) *Source {
	return &Source{
		logger: logger.Named("source"),
		client: client,
		opts:   opts,
	}
}

func (s *Source) resource() dynamic.ResourceInterface {
	return s.client.Resource(ClaimGVR).Namespace(s.opts.Namespace)
}

// Snapshot lists every claim in scope once.
func (s *Source) Snapshot(ctx context.Context) (Listing, error) {
	list, err := s.resource().List(ctx, s.opts.listOptions())
	if err != nil {
		return Listing{}, types.SourceError("list claims", err)
	}

	listing := Listing{
		Claims:          make([]types.ClaimRecord, 0, len(list.Items)),
		ResourceVersion: list.GetResourceVersion(),
	}
	for i := range list.Items {
		c, err := ClaimFromUnstructured(&list.Items[i])
		if err != nil {
			return Listing{}, fmt.Errorf("snapshot: %w", err)
		}
		listing.Claims = append(listing.Claims, c)
	}

	s.logger.Debug("Listed claims",
		zap.String("namespace", s.opts.Namespace),
		zap.Int("count", len(listing.Claims)),
		zap.String("resource_version", listing.ResourceVersion),
	)
	return listing, nil
}
