package types

import (
	"time"

	k8stypes "k8s.io/apimachinery/pkg/types"

	"github.com/potooio/pvcwatch/internal/quantity"
)

// AlertState is the capacity state derived from the running total.
type AlertState string

const (
	StateNormal       AlertState = "Normal"
	StateOverCapacity AlertState = "OverCapacity"
)

// Severity indicates how urgently a notification needs attention.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"  // Capacity limit reached
	SeverityInfo     Severity = "Info"     // Usage back to normal
)

// Severity returns the notification severity of entering this state.
func (s AlertState) Severity() Severity {
	if s == StateOverCapacity {
		return SeverityWarning
	}
	return SeverityInfo
}

// Transition records a change of AlertState. It is produced exactly once
// per crossing of the capacity limit.
type Transition struct {
	From  AlertState
	To    AlertState
	Total quantity.Quantity
	Limit quantity.Quantity

	// Claim is the claim whose event caused the crossing.
	Claim k8stypes.NamespacedName
	Time  time.Time
}
