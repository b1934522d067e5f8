// Package quota reads the storage limit of a namespace ResourceQuota so the
// capacity limit can follow what the cluster already enforces.
package quota

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
	"github.com/potooio/pvcwatch/internal/util"
)

// GVR is the ResourceQuota resource.
var GVR = schema.GroupVersionResource{
	Group:    "",
	Version:  "v1",
	Resource: "resourcequotas",
}

// StorageKey is the quota entry limiting requested storage across all
// claims in a namespace.
const StorageKey = "requests.storage"

// Storage is the storage entry of one ResourceQuota.
type Storage struct {
	Namespace string
	Name      string
	Hard      quantity.Quantity
	// Used is zero when the quota controller has not reported usage yet.
	Used quantity.Quantity
}

// Get fetches the named quota and returns its storage entry.
func Get(ctx context.Context, client dynamic.Interface, namespace, name string) (Storage, error) {
	obj, err := client.Resource(GVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return Storage{}, types.SourceError(fmt.Sprintf("get resourcequota %s/%s", namespace, name), err)
	}
	return StorageFromUnstructured(obj)
}

// StorageFromUnstructured extracts the storage entry of a ResourceQuota. A
// quota without a hard requests.storage entry is an error.
func StorageFromUnstructured(obj *unstructured.Unstructured) (Storage, error) {
	s := Storage{
		Namespace: obj.GetNamespace(),
		Name:      obj.GetName(),
		Used:      quantity.Zero(),
	}

	hard := util.SafeNestedMap(obj.Object, "spec", "hard")
	raw, found, err := util.NestedScalarString(hard, StorageKey)
	if err != nil {
		return s, fmt.Errorf("resourcequota %s/%s: %w", s.Namespace, s.Name, &quantity.ParseError{Err: err})
	}
	if !found {
		return s, fmt.Errorf("resourcequota %s/%s has no hard %s limit", s.Namespace, s.Name, StorageKey)
	}
	if s.Hard, err = quantity.Parse(raw); err != nil {
		return s, fmt.Errorf("resourcequota %s/%s: %w", s.Namespace, s.Name, err)
	}

	used := util.SafeNestedMap(obj.Object, "status", "used")
	if raw, found, err := util.NestedScalarString(used, StorageKey); err == nil && found {
		if q, err := quantity.Parse(raw); err == nil {
			s.Used = q
		}
	}
	return s, nil
}
