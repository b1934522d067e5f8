package source

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
	"github.com/potooio/pvcwatch/internal/util"
)

// ClaimGVR identifies core/v1 PersistentVolumeClaims.
var ClaimGVR = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "persistentvolumeclaims"}

// ClaimListKind is the list kind registered for ClaimGVR with fake dynamic clients.
const ClaimListKind = "PersistentVolumeClaimList"

// ClaimFromUnstructured normalizes a PVC object into a ClaimRecord.
//
// A claim with no storage request counts as zero. A request that is present
// but malformed yields a *quantity.ParseError.
func ClaimFromUnstructured(obj *unstructured.Unstructured) (types.ClaimRecord, error) {
	if obj == nil {
		return types.ClaimRecord{}, fmt.Errorf("nil object")
	}
	c := types.ClaimRecord{
		Namespace:       obj.GetNamespace(),
		Name:            obj.GetName(),
		Volume:          util.SafeNestedString(obj.Object, "spec", "volumeName"),
		Phase:           util.SafeStringFromMap(util.SafeNestedMap(obj.Object, "status"), "phase"),
		ResourceVersion: obj.GetResourceVersion(),
		Size:            quantity.Zero(),
	}

	raw, found, err := util.NestedScalarString(obj.Object, "spec", "resources", "requests", "storage")
	if err != nil {
		return c, fmt.Errorf("claim %s/%s: %w", c.Namespace, c.Name, &quantity.ParseError{Err: err})
	}
	if !found {
		return c, nil
	}
	size, err := quantity.Parse(raw)
	if err != nil {
		return c, fmt.Errorf("claim %s/%s: %w", c.Namespace, c.Name, err)
	}
	c.Size = size
	return c, nil
}
