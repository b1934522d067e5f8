package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/potooio/pvcwatch/internal/types"
)

const (
	defaultWebhookTimeout    = 10 * time.Second
	defaultWebhookWorkers    = 3
	defaultWebhookBufferSize = 100
	defaultRetryBackoff      = time.Second
	maxRetries               = 2
	userAgent                = "pvcwatch/v1"
	envelopeType             = "pvcwatch.capacity.transition"
	envelopeSchemaVersion    = "1"
)

var severityRanks = map[types.Severity]int{
	types.SeverityInfo:     1,
	types.SeverityWarning:  2,
	types.SeverityCritical: 3,
}

// severityRank orders severities; unknown values rank below Info.
func severityRank(s types.Severity) int {
	return severityRanks[s]
}

// WebhookEnvelope is the JSON body POSTed for every capacity transition.
type WebhookEnvelope struct {
	Type          string         `json:"type"`
	SchemaVersion string         `json:"schemaVersion"`
	Timestamp     string         `json:"timestamp"`
	Data          TransitionData `json:"data"`
}

func newEnvelope(data TransitionData, now time.Time) WebhookEnvelope {
	return WebhookEnvelope{
		Type:          envelopeType,
		SchemaVersion: envelopeSchemaVersion,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Data:          data,
	}
}

type queuedEnvelope struct {
	ctx      context.Context
	envelope WebhookEnvelope
}

// WebhookSenderConfig holds the configuration for creating a WebhookSender.
type WebhookSenderConfig struct {
	URL                string
	TimeoutSeconds     int
	InsecureSkipVerify bool
	MinSeverity        string
	// AuthToken is sent as a bearer token when set.
	AuthToken string
}

// WebhookSender POSTs transitions to an HTTP endpoint from a small pool of
// workers. Send never blocks; a full queue drops the transition.
type WebhookSender struct {
	logger      *zap.Logger
	client      *http.Client
	endpoint    string
	authToken   string
	minSeverity types.Severity

	queue chan queuedEnvelope
	wg    sync.WaitGroup

	// retryBackoff is the first retry delay; each later retry doubles it.
	retryBackoff time.Duration
}

// NewWebhookSender validates cfg and builds a sender. Workers do not run
// until Start is called.
func NewWebhookSender(logger *zap.Logger, cfg WebhookSenderConfig) (*WebhookSender, error) {
	if err := validateEndpoint(cfg.URL); err != nil {
		return nil, err
	}

	timeout := defaultWebhookTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in flag
		logger.Warn("Webhook TLS certificate verification is disabled",
			zap.String("url", RedactURL(cfg.URL)))
	}

	minSeverity := types.Severity(cfg.MinSeverity)
	if minSeverity == "" {
		minSeverity = types.SeverityWarning
	}

	return &WebhookSender{
		logger:       logger.Named("webhook-sender"),
		client:       &http.Client{Timeout: timeout, Transport: transport},
		endpoint:     cfg.URL,
		authToken:    cfg.AuthToken,
		minSeverity:  minSeverity,
		queue:        make(chan queuedEnvelope, defaultWebhookBufferSize),
		retryBackoff: defaultRetryBackoff,
	}, nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("webhook URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	case u.Host == "":
		return errors.New("webhook URL must include a host")
	}
	return nil
}

// Name implements Sender.
func (ws *WebhookSender) Name() string { return "webhook" }

// ShouldSend implements Sender.
func (ws *WebhookSender) ShouldSend(severity types.Severity) bool {
	return severityRank(severity) >= severityRank(ws.minSeverity)
}

// Start implements Sender.
func (ws *WebhookSender) Start(ctx context.Context) {
	ws.wg.Add(defaultWebhookWorkers)
	for range defaultWebhookWorkers {
		go func() {
			defer ws.wg.Done()
			ws.run(ctx)
		}()
	}
	ws.logger.Info("Webhook sender started",
		zap.String("url", RedactURL(ws.endpoint)),
		zap.Int("workers", defaultWebhookWorkers),
		zap.String("min_severity", string(ws.minSeverity)),
	)
}

// Close blocks until every worker has exited. The context given to Start
// must already be cancelled.
func (ws *WebhookSender) Close() {
	ws.wg.Wait()
}

// Send implements Sender.
func (ws *WebhookSender) Send(ctx context.Context, data TransitionData) error {
	item := queuedEnvelope{ctx: ctx, envelope: newEnvelope(data, time.Now())}
	select {
	case ws.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	webhookSendTotal.WithLabelValues("dropped").Inc()
	ws.logger.Warn("Webhook send buffer full, dropping notification",
		zap.String("namespace", data.Namespace),
		zap.String("to", data.To))
	return errors.New("webhook send buffer full")
}

func (ws *WebhookSender) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			ws.flush()
			return
		case item := <-ws.queue:
			if err := ws.deliver(item.ctx, item.envelope); err != nil {
				ws.logger.Error("Webhook send failed",
					zap.String("url", RedactURL(ws.endpoint)),
					zap.Error(err))
			}
		}
	}
}

// flush delivers whatever is still queued, each with a fresh timeout,
// since the original request contexts are usually cancelled by now.
func (ws *WebhookSender) flush() {
	for {
		var item queuedEnvelope
		select {
		case item = <-ws.queue:
		default:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), ws.client.Timeout)
		err := ws.deliver(ctx, item.envelope)
		cancel()
		if err != nil {
			ws.logger.Warn("Webhook send failed during shutdown drain",
				zap.String("url", RedactURL(ws.endpoint)),
				zap.Error(err))
		}
	}
}

// deliver POSTs envelope, retrying transient failures with exponential
// backoff. Client errors are returned after a single attempt.
func (ws *WebhookSender) deliver(ctx context.Context, envelope WebhookEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		webhookSendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	backoff := wait.Backoff{Duration: ws.retryBackoff, Factor: 2, Steps: maxRetries + 1}
	attempts := 0
	var lastErr error
	waitErr := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		if attempts > 0 {
			webhookSendTotal.WithLabelValues("retry").Inc()
		}
		attempts++
		lastErr = ws.post(ctx, body)
		switch {
		case lastErr == nil:
			return true, nil
		case !isRetryable(lastErr):
			return false, lastErr
		}
		ws.logger.Debug("Webhook send transient failure, will retry",
			zap.Int("attempt", attempts),
			zap.Error(lastErr))
		return false, nil
	})

	switch {
	case waitErr == nil:
		return nil
	case ctx.Err() != nil:
		webhookSendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("webhook delivery interrupted after %d attempts: %w", attempts, ctx.Err())
	case lastErr != nil && !isRetryable(lastErr):
		webhookSendTotal.WithLabelValues("error").Inc()
		return lastErr
	}
	webhookSendTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("webhook send failed after %d attempts: %w", attempts, lastErr)
}

// post performs one request and classifies the outcome.
func (ws *WebhookSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if ws.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+ws.authToken)
	}

	start := time.Now()
	resp, err := ws.client.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		webhookSendDuration.WithLabelValues("error").Observe(elapsed)
		return &webhookError{err: err, retryable: true}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode/100 == 2 {
		webhookSendTotal.WithLabelValues("success").Inc()
		webhookSendDuration.WithLabelValues("success").Observe(elapsed)
		return nil
	}
	webhookSendDuration.WithLabelValues("error").Observe(elapsed)
	return &webhookError{
		err:       fmt.Errorf("webhook returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= http.StatusInternalServerError,
	}
}

type webhookError struct {
	err       error
	retryable bool
}

func (e *webhookError) Error() string { return e.err.Error() }
func (e *webhookError) Unwrap() error { return e.err }

// isRetryable reports whether err is transient. Errors not produced by
// post are treated as transient.
func isRetryable(err error) bool {
	var we *webhookError
	if errors.As(err, &we) {
		return we.retryable
	}
	return true
}

// RedactURL hides the userinfo password and every query value so the URL
// can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
