package notifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/potooio/pvcwatch/internal/annotations"
)

func TestRenderMessage(t *testing.T) {
	eb := NewEventBuilder("")
	assert.Equal(t, "Claimed storage 110Gi reached the limit of 100Gi (110.0%)", eb.RenderMessage(overTransition()))
	assert.Equal(t, "Claimed storage 50Gi is back within the limit of 100Gi (50.0%)", eb.RenderMessage(normalTransition()))
}

func TestBuildStructuredData(t *testing.T) {
	eb := NewEventBuilder("pvcwatch")
	data := eb.BuildStructuredData(overTransition(), "default")

	assert.Equal(t, "1", data.SchemaVersion)
	assert.Equal(t, "default", data.Namespace)
	assert.Equal(t, "Normal", data.From)
	assert.Equal(t, "OverCapacity", data.To)
	assert.Equal(t, "Warning", data.Severity)
	assert.Equal(t, "110Gi", data.Total)
	assert.Equal(t, "100Gi", data.Limit)
	assert.Equal(t, int64(110)<<30, data.TotalBytes)
	assert.Equal(t, int64(100)<<30, data.LimitBytes)
	assert.InDelta(t, 110.0, data.PercentUsed, 0.001)
	assert.Equal(t, "default/b", data.Claim)
	assert.Equal(t, "2026-01-02T15:04:05Z", data.ObservedAt)
}

func TestBuildStructuredData_NoClaim(t *testing.T) {
	tr := normalTransition()
	tr.Claim.Name = ""
	data := NewEventBuilder("").BuildStructuredData(tr, "default")
	assert.Empty(t, data.Claim)
	assert.NotEmpty(t, data.ObservedAt)
}

func TestBuildEvent(t *testing.T) {
	eb := NewEventBuilder("pvcwatch")
	ev := eb.BuildEvent(overTransition(), "default")

	assert.Equal(t, "default", ev.Namespace)
	assert.NotEmpty(t, ev.Name)
	assert.Equal(t, corev1.EventTypeWarning, ev.Type)
	assert.Equal(t, ReasonClaimOverage, ev.Reason)
	assert.Equal(t, corev1.ObjectReference{APIVersion: "v1", Kind: "Namespace", Name: "default"}, ev.InvolvedObject)
	assert.Equal(t, "pvcwatch", ev.Source.Component)
	assert.Equal(t, int32(1), ev.Count)

	assert.Equal(t, annotations.ManagedByValue, ev.Labels[annotations.LabelManagedBy])
	assert.Equal(t, "over-capacity", ev.Labels[annotations.LabelState])

	assert.Equal(t, "OverCapacity", ev.Annotations[annotations.EventState])
	assert.Equal(t, "Normal", ev.Annotations[annotations.EventPreviousState])
	assert.Equal(t, "Warning", ev.Annotations[annotations.EventSeverity])
	assert.Equal(t, "110Gi", ev.Annotations[annotations.EventTotal])
	assert.Equal(t, "100Gi", ev.Annotations[annotations.EventLimit])
	assert.Equal(t, "default/b", ev.Annotations[annotations.EventClaim])

	var data TransitionData
	require.NoError(t, json.Unmarshal([]byte(ev.Annotations[annotations.EventStructuredData]), &data))
	assert.Equal(t, "OverCapacity", data.To)
}

func TestBuildEvent_UniqueNames(t *testing.T) {
	eb := NewEventBuilder("")
	a := eb.BuildEvent(overTransition(), "default")
	b := eb.BuildEvent(overTransition(), "default")
	assert.NotEqual(t, a.Name, b.Name)
}

func TestEventTypeAndLabel(t *testing.T) {
	eb := NewEventBuilder("")
	ev := eb.BuildEvent(normalTransition(), "default")
	assert.Equal(t, corev1.EventTypeNormal, ev.Type)
	assert.Equal(t, ReasonClaimUsageNormal, ev.Reason)
	assert.Equal(t, "normal", ev.Labels[annotations.LabelState])
}

func TestToKebabCase(t *testing.T) {
	assert.Equal(t, "over-capacity", toKebabCase("OverCapacity"))
	assert.Equal(t, "normal", toKebabCase("Normal"))
	assert.Equal(t, "", toKebabCase(""))
}
