// Package slack announces high-risk alerts to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

const (
	maxDescriptionLen = 2000
	httpTimeout       = 10 * time.Second
)

// Notifier posts alerts to a Slack webhook.
type Notifier struct {
	webhookURL string
	publicURL  string
	client     *http.Client
	logger     log.Logger
}

// New creates a Slack notifier. If webhookURL is empty, Notify is a no-op.
// publicURL, when set, is used to link the message to the alert JSON.
func New(webhookURL, publicURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		publicURL:  strings.TrimRight(publicURL, "/"),
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts a to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, a *alert.Alert) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(n.buildMessage(a))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "alert_id", a.ID, "risk", a.Risk)
	return nil
}

func (n *Notifier) buildMessage(a *alert.Alert) map[string]any {
	return map[string]any{
		"text": fmt.Sprintf("%s %s risk alert: %s", riskEmoji(a.Risk), a.Risk, a.Title),
		"blocks": []map[string]any{
			headerBlock(a),
			fieldsBlock(a),
			descriptionBlock(a),
			n.contextBlock(a),
		},
	}
}

func headerBlock(a *alert.Alert) map[string]any {
	title := a.Title
	if title == "" {
		title = "Untitled alert"
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s", riskEmoji(a.Risk), title),
		},
	}
}

func fieldsBlock(a *alert.Alert) map[string]any {
	reason := a.Reason
	if reason == "" {
		reason = "n/a"
	}
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %s", a.Risk)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Predicted by:* %s", a.AnalysisSource)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", reason)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Location:* %.5f, %.5f", a.Lat, a.Lng)},
		},
	}
}

func descriptionBlock(a *alert.Alert) map[string]any {
	text := truncate(a.Description, maxDescriptionLen)
	if text == "" {
		text = "_No description._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func (n *Notifier) contextBlock(a *alert.Alert) map[string]any {
	text := fmt.Sprintf("safewatch • alert %s • %s", a.ID, a.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	if n.publicURL != "" {
		text += fmt.Sprintf(" • <%s/api/v1/alerts/%s|details>", n.publicURL, a.ID)
	}
	return map[string]any{
		"type":     "context",
		"elements": []map[string]any{{"type": "mrkdwn", "text": text}},
	}
}

func riskEmoji(r alert.Risk) string {
	switch r {
	case alert.RiskHigh:
		return "\U0001f534" // red circle
	case alert.RiskMedium:
		return "\U0001f7e0" // orange circle
	case alert.RiskLow:
		return "\U0001f7e2" // green circle
	default:
		return "⚪" // white circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
