package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/testutil"
	"github.com/potooio/pvcwatch/internal/types"
)

func nextEvent(t *testing.T, s Stream) types.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "stream closed early, err=%v", s.Err())
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return types.ChangeEvent{}
	}
}

// waitForWatch blocks until the informer's reflector has registered its
// watch, so objects created afterwards are observed as events.
func waitForWatch(t *testing.T, client *dynamicfake.FakeDynamicClient) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, a := range client.Actions() {
			if a.GetVerb() == "watch" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func startInformer(t *testing.T, client *dynamicfake.FakeDynamicClient) (*Informer, Listing, Stream) {
	t.Helper()
	inf := NewInformer(zap.NewNop(), client, Options{Namespace: "default"}, 0)
	listing, err := inf.Snapshot(context.Background())
	require.NoError(t, err)
	stream, err := inf.Stream(context.Background(), listing)
	require.NoError(t, err)
	t.Cleanup(stream.Stop)
	waitForWatch(t, client)
	return inf, listing, stream
}

func TestInformer_SnapshotSorted(t *testing.T) {
	client := testutil.NewFakeDynamicClient(
		testutil.MakePVC("default", "zeta", "1Gi"),
		testutil.MakePVC("default", "alpha", "2Gi"),
		testutil.MakePVC("other", "skipped", "3Gi"),
	)

	_, listing, _ := startInformer(t, client)
	require.Len(t, listing.Claims, 2)
	assert.Equal(t, "alpha", listing.Claims[0].Name)
	assert.Equal(t, "zeta", listing.Claims[1].Name)
}

func TestInformer_StreamsChangesAfterSnapshot(t *testing.T) {
	client := testutil.NewFakeDynamicClient(
		testutil.MakePVC("default", "existing", "10Gi", testutil.WithResourceVersion("1")),
	)
	_, _, stream := startInformer(t, client)
	claims := client.Resource(ClaimGVR).Namespace("default")
	ctx := context.Background()

	_, err := claims.Create(ctx, testutil.MakePVC("default", "new", "5Gi", testutil.WithResourceVersion("2")), metav1.CreateOptions{})
	require.NoError(t, err)
	ev := nextEvent(t, stream)
	assert.Equal(t, types.EventAdded, ev.Type)
	assert.Equal(t, "new", ev.Claim.Name)

	_, err = claims.Update(ctx, testutil.MakePVC("default", "new", "8Gi", testutil.WithResourceVersion("3")), metav1.UpdateOptions{})
	require.NoError(t, err)
	ev = nextEvent(t, stream)
	assert.Equal(t, types.EventModified, ev.Type)
	assert.True(t, ev.Claim.Size.Equal(quantity.MustParse("8Gi")))

	require.NoError(t, claims.Delete(ctx, "existing", metav1.DeleteOptions{}))
	ev = nextEvent(t, stream)
	assert.Equal(t, types.EventDeleted, ev.Type)
	assert.Equal(t, "existing", ev.Claim.Name)
}

func TestInformer_SkipsUnchangedResourceVersion(t *testing.T) {
	client := testutil.NewFakeDynamicClient(
		testutil.MakePVC("default", "a", "1Gi", testutil.WithResourceVersion("1")),
	)
	_, _, stream := startInformer(t, client)
	claims := client.Resource(ClaimGVR).Namespace("default")
	ctx := context.Background()

	// Same resourceVersion looks like a resync and is dropped.
	_, err := claims.Update(ctx, testutil.MakePVC("default", "a", "1Gi", testutil.WithResourceVersion("1")), metav1.UpdateOptions{})
	require.NoError(t, err)
	_, err = claims.Update(ctx, testutil.MakePVC("default", "a", "2Gi", testutil.WithResourceVersion("2")), metav1.UpdateOptions{})
	require.NoError(t, err)

	ev := nextEvent(t, stream)
	assert.Equal(t, "2", ev.Claim.ResourceVersion)
}

func TestInformer_ParseErrorEndsStream(t *testing.T) {
	client := testutil.NewFakeDynamicClient()
	_, _, stream := startInformer(t, client)

	_, err := client.Resource(ClaimGVR).Namespace("default").Create(context.Background(),
		testutil.MakePVC("default", "bad", "much"), metav1.CreateOptions{})
	require.NoError(t, err)

	collect(t, stream)
	var perr *quantity.ParseError
	assert.True(t, errors.As(stream.Err(), &perr))
}

func TestInformer_SyncTimeout(t *testing.T) {
	client := testutil.NewFakeDynamicClient()
	client.PrependReactor("list", "persistentvolumeclaims", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})
	inf := NewInformer(zap.NewNop(), client, Options{Namespace: "default"}, 0)
	inf.SetSyncTimeout(200 * time.Millisecond)

	_, err := inf.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSourceUnavailable))

	_, err = inf.Stream(context.Background(), Listing{})
	assert.Error(t, err, "no stream after a failed sync")
}

func TestInformer_StreamBeforeSnapshot(t *testing.T) {
	inf := NewInformer(zap.NewNop(), testutil.NewFakeDynamicClient(), Options{}, 0)
	_, err := inf.Stream(context.Background(), Listing{})
	assert.Error(t, err)
}

func TestInformer_SnapshotTwice(t *testing.T) {
	client := testutil.NewFakeDynamicClient()
	inf, _, _ := startInformer(t, client)
	_, err := inf.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestInformer_StopClosesEvents(t *testing.T) {
	client := testutil.NewFakeDynamicClient()
	inf := NewInformer(zap.NewNop(), client, Options{Namespace: "default"}, 0)
	listing, err := inf.Snapshot(context.Background())
	require.NoError(t, err)
	stream, err := inf.Stream(context.Background(), listing)
	require.NoError(t, err)

	stream.Stop()
	assert.Empty(t, collect(t, stream))
	assert.NoError(t, stream.Err())
}
