// Package notify delivers watch results to a chat channel. The sink is
// an interface; the bot ships a webhook implementation and a log-only
// fallback for running without a chat integration.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sink accepts a channel identifier and a formatted message. An unknown
// channel is tolerated as a no-op, not an error.
type Sink interface {
	Send(ctx context.Context, channel, text string) error
}

// Webhook posts messages as JSON to a chat webhook endpoint.
type Webhook struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWebhook builds a webhook sink. A nil client gets a 10s timeout
// default.
func NewWebhook(url string, client *http.Client, log *zap.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{url: url, client: client, log: log.Named("notify")}
}

type webhookMessage struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

// Send posts the message. A 404 means the channel is gone (deleted, or
// the bot lost access); that is silently dropped so a dead channel never
// fails a completion.
func (w *Webhook) Send(ctx context.Context, channel, text string) error {
	payload, err := json.Marshal(webhookMessage{Channel: channel, Content: text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		w.log.Warn("channel not found, dropping message", zap.String("channel", channel))
		return nil
	case resp.StatusCode >= 300:
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// LogSink writes messages to the logger. Used when no webhook is
// configured.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink builds a log-only sink.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("notify")}
}

// Send logs the message.
func (s *LogSink) Send(_ context.Context, channel, text string) error {
	s.log.Info("notification", zap.String("channel", channel), zap.String("text", text))
	return nil
}
