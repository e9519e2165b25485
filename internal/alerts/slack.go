package alerts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/trademaestro/trading-agent/internal/observ"
)

// Notifier is the fire-and-forget notification collaborator. Callers never
// block on delivery and never see delivery errors.
type Notifier interface {
	Notify(event string, payload map[string]any)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(string, map[string]any) {}

// SlackConfig configures the webhook client.
type SlackConfig struct {
	WebhookURL      string `yaml:"webhook_url"`
	Channel         string `yaml:"channel"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	DedupeWindowSec int    `yaml:"dedupe_window_sec"`
	MaxPerMinute    int    `yaml:"max_per_minute"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type queuedAlert struct {
	event   string
	payload map[string]any
	hash    string
}

// SlackClient posts events to a Slack webhook from a background worker, with
// content-hash dedupe and a per-minute send cap so a flapping condition
// cannot spam the channel.
type SlackClient struct {
	cfg        SlackConfig
	httpClient *http.Client
	queue      chan queuedAlert

	mu       sync.Mutex
	lastSent map[string]time.Time // hash -> sent at
	recent   []time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSlackClient starts the sender worker. An empty webhook URL yields a
// client that drops everything (callers can still wire it unconditionally).
func NewSlackClient(cfg SlackConfig) *SlackClient {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 5000
	}
	if cfg.DedupeWindowSec <= 0 {
		cfg.DedupeWindowSec = 300
	}
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &SlackClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		queue:      make(chan queuedAlert, 256),
		lastSent:   map[string]time.Time{},
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.sendLoop(ctx)
	return c
}

// Close stops the sender worker; queued alerts are abandoned.
func (c *SlackClient) Close() {
	c.cancel()
	<-c.done
}

// Notify enqueues an event. Full queue or disabled client drops silently --
// alerting must never apply backpressure to the pipeline.
func (c *SlackClient) Notify(event string, payload map[string]any) {
	if c.cfg.WebhookURL == "" {
		return
	}
	select {
	case c.queue <- queuedAlert{event: event, payload: payload, hash: alertHash(event, payload)}:
	default:
		observ.IncCounter("alerts_dropped_total", map[string]string{"reason": "queue_full"})
	}
}

func (c *SlackClient) sendLoop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.queue:
			if !c.shouldSend(a.hash) {
				continue
			}
			c.post(ctx, a)
		}
	}
}

func (c *SlackClient) shouldSend(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()

	if at, ok := c.lastSent[hash]; ok && now.Sub(at) < time.Duration(c.cfg.DedupeWindowSec)*time.Second {
		observ.IncCounter("alerts_dropped_total", map[string]string{"reason": "duplicate"})
		return false
	}
	kept := c.recent[:0]
	for _, t := range c.recent {
		if now.Sub(t) < time.Minute {
			kept = append(kept, t)
		}
	}
	c.recent = kept
	if len(c.recent) >= c.cfg.MaxPerMinute {
		observ.IncCounter("alerts_dropped_total", map[string]string{"reason": "rate_limited"})
		return false
	}
	c.lastSent[hash] = now
	c.recent = append(c.recent, now)
	return true
}

func (c *SlackClient) post(ctx context.Context, a queuedAlert) {
	msg := slackMessage{
		Channel: c.cfg.Channel,
		Text:    fmt.Sprintf(":rotating_light: %s", a.event),
		Attachments: []slackAttachment{{
			Color:  colorFor(a.event),
			Fields: fieldsFor(a.payload),
		}},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observ.IncCounter("alerts_webhook_errors_total", nil)
		observ.Warn("alert_send_failed", map[string]any{"event": a.event, "error": err.Error()})
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		observ.IncCounter("alerts_webhook_errors_total", nil)
		return
	}
	observ.IncCounter("alerts_sent_total", map[string]string{"event": a.event})
}

func colorFor(event string) string {
	switch event {
	case "emergency_stop", "connection_escalation":
		return "danger"
	case "trading_paused", "connection_degraded":
		return "warning"
	default:
		return "good"
	}
}

func fieldsFor(payload map[string]any) []slackField {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]slackField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slackField{
			Title: k,
			Value: fmt.Sprintf("%v", payload[k]),
			Short: true,
		})
	}
	return fields
}

func alertHash(event string, payload map[string]any) string {
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(append([]byte(event+"|"), b...))
	return hex.EncodeToString(sum[:8])
}
