package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
)

var severityColors = map[Severity]int{
	SeverityInfo:    0x3498db,
	SeverityWarning: 0xf1c40f,
	SeverityError:   0xe74c3c,
	SeveritySuccess: 0x2ecc71,
}

// WebhookChannel posts alerts as Discord-style embeds.
type WebhookChannel struct {
	client *resty.Client
	url    string
}

// NewWebhookChannel creates a webhook channel posting to url.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		client: resty.New().SetTimeout(deliveryTimeout),
		url:    url,
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

func (w *WebhookChannel) Deliver(ctx context.Context, alert Alert) error {
	keys := make([]string, 0, len(alert.Details))
	for k := range alert.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]embedField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, embedField{Name: k, Value: fmt.Sprint(alert.Details[k]), Inline: true})
	}

	payload := webhookPayload{Embeds: []embed{{
		Title:       fmt.Sprintf("[%s] %s", alert.Severity, alert.Event),
		Description: alert.Message,
		Color:       severityColors[alert.Severity],
		Fields:      fields,
		Timestamp:   alert.Timestamp.Format(time.RFC3339),
	}}}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
