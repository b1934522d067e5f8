// Package annotations defines the label and annotation keys that pvcwatch
// writes to the Kubernetes Events it emits on capacity transitions. They make
// the events filterable with kubectl and parseable by automation without
// text extraction.
package annotations

// Event annotation keys.
// These are written to every Event created by pvcwatch.
const (
	// ManagedBy identifies Events created by pvcwatch.
	// Value: "pvcwatch"
	ManagedBy = "pvcwatch.io/managed-by"

	// EventState is the capacity state entered.
	// Value: "Normal", "OverCapacity"
	EventState = "pvcwatch.io/state"

	// EventPreviousState is the capacity state left.
	EventPreviousState = "pvcwatch.io/previous-state"

	// EventSeverity is the notification severity.
	// Value: "Warning", "Info"
	EventSeverity = "pvcwatch.io/severity"

	// EventTotal is the claimed storage when the transition happened, e.g. "110Gi".
	EventTotal = "pvcwatch.io/total"

	// EventLimit is the configured capacity limit, e.g. "100Gi".
	EventLimit = "pvcwatch.io/limit"

	// EventClaim is the namespace/name of the claim whose change caused the transition.
	EventClaim = "pvcwatch.io/claim"

	// EventStructuredData is a JSON blob with the full machine-readable
	// transition payload, identical to the webhook data field.
	EventStructuredData = "pvcwatch.io/structured-data"
)

// Event label keys, for `kubectl get events -l ...`.
const (
	// LabelManagedBy enables `kubectl get events -l pvcwatch.io/managed-by=pvcwatch`
	LabelManagedBy = "pvcwatch.io/managed-by"

	// LabelState enables `kubectl get events -l pvcwatch.io/state=over-capacity`
	// Value: "over-capacity", "normal"
	LabelState = "pvcwatch.io/state"
)

// ManagedByValue is the value for the managed-by label and annotation.
const ManagedByValue = "pvcwatch"
