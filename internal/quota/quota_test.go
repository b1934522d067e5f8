package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

func makeQuota(ns, name string, hard, used map[string]interface{}) *unstructured.Unstructured {
	obj := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ResourceQuota",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": ns,
		},
		"spec": map[string]interface{}{"hard": hard},
	}
	if used != nil {
		obj["status"] = map[string]interface{}{"hard": hard, "used": used}
	}
	return &unstructured.Unstructured{Object: obj}
}

func newClient(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{GVR: "ResourceQuotaList"},
		objs...,
	)
}

func TestStorageFromUnstructured(t *testing.T) {
	q := makeQuota("team-a", "storage",
		map[string]interface{}{"requests.storage": "500Gi", "pods": "20"},
		map[string]interface{}{"requests.storage": "120Gi"},
	)

	s, err := StorageFromUnstructured(q)
	require.NoError(t, err)
	assert.Equal(t, "team-a", s.Namespace)
	assert.Equal(t, "storage", s.Name)
	assert.True(t, s.Hard.Equal(quantity.MustParse("500Gi")))
	assert.True(t, s.Used.Equal(quantity.MustParse("120Gi")))
}

func TestStorageFromUnstructured_NoStatus(t *testing.T) {
	q := makeQuota("team-a", "storage", map[string]interface{}{"requests.storage": "1Ti"}, nil)

	s, err := StorageFromUnstructured(q)
	require.NoError(t, err)
	assert.Equal(t, "1Ti", s.Hard.String())
	assert.True(t, s.Used.IsZero())
}

func TestStorageFromUnstructured_NoStorageEntry(t *testing.T) {
	q := makeQuota("team-a", "compute", map[string]interface{}{"cpu": "10"}, nil)

	_, err := StorageFromUnstructured(q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hard requests.storage limit")
}

func TestStorageFromUnstructured_Malformed(t *testing.T) {
	q := makeQuota("team-a", "storage", map[string]interface{}{"requests.storage": "plenty"}, nil)

	_, err := StorageFromUnstructured(q)
	var perr *quantity.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "plenty", perr.Value)
}

func TestStorageFromUnstructured_NonScalar(t *testing.T) {
	q := makeQuota("team-a", "storage", map[string]interface{}{
		"requests.storage": map[string]interface{}{"value": "1Gi"},
	}, nil)

	_, err := StorageFromUnstructured(q)
	var perr *quantity.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestGet(t *testing.T) {
	client := newClient(makeQuota("team-a", "storage", map[string]interface{}{"requests.storage": "200Gi"}, nil))

	s, err := Get(context.Background(), client, "team-a", "storage")
	require.NoError(t, err)
	assert.Equal(t, "200Gi", s.Hard.String())
}

func TestGet_NotFound(t *testing.T) {
	_, err := Get(context.Background(), newClient(), "team-a", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "team-a/missing")
}
