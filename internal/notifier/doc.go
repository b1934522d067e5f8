// Package notifier delivers capacity transitions to the outside world:
// Kubernetes Events on the watched Namespace and external senders such as
// webhooks.
//
// # Contract
//
// The Dispatcher:
//  1. Receives a types.Transition from the controller, exactly once per
//     crossing of the capacity limit
//  2. Applies a per-namespace token bucket (RateLimitPerMinute); excess
//     transitions are dropped with a metric increment
//  3. Creates a Kubernetes Event on the Namespace object when EmitEvents is set:
//     - OverCapacity: type Warning, reason ClaimOverage
//     - Normal:       type Normal,  reason ClaimUsageNormal
//  4. Fans the TransitionData payload out to every Sender whose minimum
//     severity is met (OverCapacity is Warning, Normal is Info)
//
// # Webhook payload
//
//	{
//	  "type": "pvcwatch.capacity.transition",
//	  "schemaVersion": "1",
//	  "timestamp": "2026-01-02T15:04:05Z",
//	  "data": { "namespace": "default", "from": "Normal", "to": "OverCapacity", ... }
//	}
//
// Delivery is asynchronous. Transient failures (5xx, connection errors) are
// retried twice with exponential backoff. Queued payloads are flushed on
// shutdown.
package notifier
