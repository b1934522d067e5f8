// Package testutil provides shared test helpers for the pvcwatch project.
// Import this in test files to avoid duplicating fixture loading, claim builders, etc.
package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"sigs.k8s.io/yaml"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

var (
	claimGVR = schema.GroupVersionResource{Version: "v1", Resource: "persistentvolumeclaims"}
	quotaGVR = schema.GroupVersionResource{Version: "v1", Resource: "resourcequotas"}
)

// LoadFixture reads a YAML file and returns it as an Unstructured object.
// Fails the test immediately if the file can't be read or parsed.
func LoadFixture(t *testing.T, path string) *unstructured.Unstructured {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read fixture %s", path)
	obj := &unstructured.Unstructured{}
	require.NoError(t, yaml.Unmarshal(data, &obj.Object), "failed to parse fixture %s", path)
	return obj
}

// PVCOption customizes a claim built by MakePVC.
type PVCOption func(*unstructured.Unstructured)

// WithVolume binds the claim to a volume and marks it Bound.
func WithVolume(volume string) PVCOption {
	return func(u *unstructured.Unstructured) {
		_ = unstructured.SetNestedField(u.Object, volume, "spec", "volumeName")
		_ = unstructured.SetNestedField(u.Object, "Bound", "status", "phase")
	}
}

// WithResourceVersion sets metadata.resourceVersion.
func WithResourceVersion(rv string) PVCOption {
	return func(u *unstructured.Unstructured) { u.SetResourceVersion(rv) }
}

// WithLabels sets metadata.labels.
func WithLabels(labels map[string]string) PVCOption {
	return func(u *unstructured.Unstructured) { u.SetLabels(labels) }
}

// MakePVC builds an unstructured PersistentVolumeClaim requesting size.
// An empty size leaves spec.resources.requests unset.
func MakePVC(ns, name, size string, opts ...PVCOption) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "PersistentVolumeClaim",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": ns,
		},
		"spec": map[string]interface{}{
			"accessModes": []interface{}{"ReadWriteOnce"},
		},
		"status": map[string]interface{}{
			"phase": "Pending",
		},
	}}
	if size != "" {
		_ = unstructured.SetNestedField(u.Object, size, "spec", "resources", "requests", "storage")
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// MakeClaim creates a ClaimRecord for engine, reporter and notifier tests.
func MakeClaim(ns, name, size string) types.ClaimRecord {
	return types.ClaimRecord{
		Namespace: ns,
		Name:      name,
		Phase:     "Bound",
		Size:      quantity.MustParse(size),
	}
}

// NewFakeDynamicClient returns a fake dynamic client that knows how to list
// PersistentVolumeClaims and ResourceQuotas, seeded with objs.
func NewFakeDynamicClient(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			claimGVR: "PersistentVolumeClaimList",
			quotaGVR: "ResourceQuotaList",
		},
		objs...,
	)
}

// MakeResourceQuota builds an unstructured ResourceQuota with a hard
// requests.storage limit.
func MakeResourceQuota(ns, name, storage string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ResourceQuota",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": ns,
		},
		"spec": map[string]interface{}{
			"hard": map[string]interface{}{"requests.storage": storage},
		},
	}}
}
