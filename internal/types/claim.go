package types

import (
	k8stypes "k8s.io/apimachinery/pkg/types"

	"github.com/potooio/pvcwatch/internal/quantity"
)

// EventType is the kind of change reported for a claim.
type EventType string

const (
	EventAdded    EventType = "ADDED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// ClaimRecord is the normalized view of one PersistentVolumeClaim.
type ClaimRecord struct {
	// Identity
	Namespace string
	Name      string

	// Volume is the bound PersistentVolume name; empty while Pending.
	Volume string
	Phase  string

	// Size is the requested storage (spec.resources.requests.storage).
	Size quantity.Quantity

	ResourceVersion string
}

// Key returns the identity of the claim within the watched scope.
func (c ClaimRecord) Key() k8stypes.NamespacedName {
	return k8stypes.NamespacedName{Namespace: c.Namespace, Name: c.Name}
}

// ChangeEvent is one entry of the claim change stream, carrying the claim
// as it was at the time of the event.
type ChangeEvent struct {
	Type  EventType
	Claim ClaimRecord
}
