// Package webhook delivers job payloads with HTTP POST.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/chronoq/internal/config"
	"github.com/fairyhunter13/chronoq/internal/domain"
	"github.com/fairyhunter13/chronoq/internal/observability"
)

// Executor POSTs payloads to job targets through one pooled process-wide
// client. A transport-level success is a settled attempt regardless of the
// response status code; the code is recorded against the sink so operators
// can watch 4xx/5xx rates.
type Executor struct {
	client  *http.Client
	metrics domain.MetricsSink
}

// New constructs the executor and its shared HTTP client from configuration.
func New(cfg config.Config, metrics domain.MetricsSink) *Executor {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.IdleConnTimeout = cfg.HTTPPoolIdleTimeout()
	return &Executor{
		client: &http.Client{
			Timeout:   cfg.HTTPRequestTimeout(),
			Transport: otelhttp.NewTransport(transport),
		},
		metrics: metrics,
	}
}

var _ domain.Executor = (*Executor)(nil)

// Execute validates the target URL and POSTs payload as the JSON body.
// Network errors, timeouts, and DNS failures are retryable; any response from
// the server settles the attempt.
func (e *Executor) Execute(ctx domain.Context, target string, payload json.RawMessage) error {
	if err := validateURL(target); err != nil {
		return err
	}
	body := payload
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("op=webhook.Execute: %w: %w", domain.ErrHTTP, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("op=webhook.Execute: %w: %w", domain.ErrHTTP, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if e.metrics != nil {
		e.metrics.HTTPRequest(resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		observability.LoggerFromContext(ctx).Warn("webhook target returned error status",
			"target", target, "status", resp.StatusCode)
	}
	return nil
}

func validateURL(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("op=webhook.validate: %w: URL cannot be empty", domain.ErrValidation)
	}
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("op=webhook.validate: %w: URL must start with http:// or https://", domain.ErrValidation)
	}
	return nil
}
