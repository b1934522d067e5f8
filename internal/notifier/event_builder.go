package notifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilrand "k8s.io/apimachinery/pkg/util/rand"

	"github.com/potooio/pvcwatch/internal/annotations"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

// Event reasons.
const (
	ReasonClaimOverage     = "ClaimOverage"
	ReasonClaimUsageNormal = "ClaimUsageNormal"
)

// TransitionData is the machine-readable description of a capacity
// transition. It is the webhook data field and the structured-data
// annotation on Kubernetes Events.
type TransitionData struct {
	// SchemaVersion allows consumers to detect breaking changes. Currently "1".
	SchemaVersion string `json:"schemaVersion"`

	Namespace string `json:"namespace"`
	From      string `json:"from"`
	To        string `json:"to"`
	Severity  string `json:"severity"`

	Total       string  `json:"total"`
	Limit       string  `json:"limit"`
	TotalBytes  int64   `json:"totalBytes"`
	LimitBytes  int64   `json:"limitBytes"`
	PercentUsed float64 `json:"percentUsed"`

	// Claim is the namespace/name of the claim whose change caused the crossing.
	Claim string `json:"claim,omitempty"`

	Summary    string `json:"summary"`
	ObservedAt string `json:"observedAt"`
}

// EventBuilder turns transitions into Kubernetes Events and webhook payloads.
type EventBuilder struct {
	component string
}

// NewEventBuilder creates an EventBuilder reporting as component.
func NewEventBuilder(component string) *EventBuilder {
	if component == "" {
		component = "pvcwatch"
	}
	return &EventBuilder{component: component}
}

// RenderMessage returns the human-readable event message for t.
func (eb *EventBuilder) RenderMessage(t types.Transition) string {
	pct := quantity.PercentOf(t.Total, t.Limit)
	if t.To == types.StateOverCapacity {
		return fmt.Sprintf("Claimed storage %s reached the limit of %s (%.1f%%)", t.Total, t.Limit, pct)
	}
	return fmt.Sprintf("Claimed storage %s is back within the limit of %s (%.1f%%)", t.Total, t.Limit, pct)
}

// BuildStructuredData creates the JSON payload for t in namespace.
func (eb *EventBuilder) BuildStructuredData(t types.Transition, namespace string) TransitionData {
	observed := t.Time
	if observed.IsZero() {
		observed = time.Now()
	}
	data := TransitionData{
		SchemaVersion: "1",
		Namespace:     namespace,
		From:          string(t.From),
		To:            string(t.To),
		Severity:      string(t.To.Severity()),
		Total:         t.Total.String(),
		Limit:         t.Limit.String(),
		TotalBytes:    t.Total.Bytes(),
		LimitBytes:    t.Limit.Bytes(),
		PercentUsed:   quantity.PercentOf(t.Total, t.Limit),
		Summary:       eb.RenderMessage(t),
		ObservedAt:    observed.UTC().Format(time.RFC3339),
	}
	if t.Claim.Name != "" {
		data.Claim = t.Claim.String()
	}
	return data
}

// BuildEvent creates an Event on the Namespace object for t.
func (eb *EventBuilder) BuildEvent(t types.Transition, namespace string) *corev1.Event {
	now := metav1.Now()

	return &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:        fmt.Sprintf("%s.pvcwatch-%s", namespace, utilrand.String(8)),
			Namespace:   namespace,
			Labels:      eb.buildLabels(t),
			Annotations: eb.buildAnnotations(t, namespace),
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: "v1",
			Kind:       "Namespace",
			Name:       namespace,
		},
		Reason:              eventReason(t.To),
		Message:             eb.RenderMessage(t),
		Type:                eventType(t.To.Severity()),
		Source:              corev1.EventSource{Component: eb.component},
		FirstTimestamp:      now,
		LastTimestamp:       now,
		Count:               1,
		ReportingController: "pvcwatch.io/" + eb.component,
		ReportingInstance:   eb.component,
	}
}

func (eb *EventBuilder) buildLabels(t types.Transition) map[string]string {
	return map[string]string{
		annotations.LabelManagedBy: annotations.ManagedByValue,
		annotations.LabelState:     toKebabCase(string(t.To)),
	}
}

func (eb *EventBuilder) buildAnnotations(t types.Transition, namespace string) map[string]string {
	annots := map[string]string{
		annotations.ManagedBy:          annotations.ManagedByValue,
		annotations.EventState:         string(t.To),
		annotations.EventPreviousState: string(t.From),
		annotations.EventSeverity:      string(t.To.Severity()),
		annotations.EventTotal:         t.Total.String(),
		annotations.EventLimit:         t.Limit.String(),
	}
	if t.Claim.Name != "" {
		annots[annotations.EventClaim] = t.Claim.String()
	}
	if jsonBytes, err := json.Marshal(eb.BuildStructuredData(t, namespace)); err == nil {
		annots[annotations.EventStructuredData] = string(jsonBytes)
	}
	return annots
}

func eventReason(state types.AlertState) string {
	if state == types.StateOverCapacity {
		return ReasonClaimOverage
	}
	return ReasonClaimUsageNormal
}

// eventType returns the K8s event type based on severity.
func eventType(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical, types.SeverityWarning:
		return corev1.EventTypeWarning
	default:
		return corev1.EventTypeNormal
	}
}

// toKebabCase converts "OverCapacity" to "over-capacity" for label values.
func toKebabCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
