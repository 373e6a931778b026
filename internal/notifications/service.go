package notifications

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"meshforge/internal/config"
)

const userAgent = "meshforge/0.1.0"

// Completion describes a finished batch run.
type Completion struct {
	Processed  int
	Failed     int
	Degraded   int
	Cancelled  bool
	NotStarted int
	Duration   time.Duration
	OutputRoot string
}

// Service defines the notification surface used by the orchestrator.
type Service interface {
	NotifyBatchStarted(ctx context.Context, count int, outputRoot string) error
	NotifyBatchCompleted(ctx context.Context, completion Completion) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "text/plain; charset=utf-8")
	return &ntfyService{endpoint: topic, client: client}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *resty.Client
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, count int, outputRoot string) error {
	noun := "images"
	if count == 1 {
		noun = "image"
	}
	return n.send(ctx, payload{
		title:   "meshforge - Batch Started",
		message: fmt.Sprintf("Generating meshes for %d %s into %s", count, noun, filepath.Base(outputRoot)),
		tags:    []string{"meshforge", "batch", "started"},
	})
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, c Completion) error {
	duration := c.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	data := payload{tags: []string{"meshforge", "batch", "completed"}}
	switch {
	case c.Cancelled:
		data.title = "meshforge - Batch Cancelled"
		data.message = fmt.Sprintf("Cancelled after %s: %d succeeded, %d failed, %d not started", duration, c.Processed, c.Failed, c.NotStarted)
		data.tags[2] = "cancelled"
	case c.Failed == 0:
		data.title = "meshforge - Batch Complete"
		data.message = fmt.Sprintf("%d meshes generated in %s", c.Processed, duration)
	default:
		data.title = "meshforge - Batch Complete (with errors)"
		data.message = fmt.Sprintf("%d succeeded, %d failed in %s", c.Processed, c.Failed, duration)
		data.priority = "high"
	}
	if c.Degraded > 0 {
		data.message += fmt.Sprintf("\n%d degraded to obj", c.Degraded)
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "meshforge - Error",
		message:  builder.String(),
		tags:     []string{"meshforge", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "meshforge - Test",
		message:  "Notification system test",
		tags:     []string{"meshforge", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req := n.client.R().SetContext(ctx).SetBody(data.message)
	if data.title != "" {
		req.SetHeader("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.SetHeader("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.SetHeader("Priority", data.priority)
	}

	res, err := req.Post(n.endpoint)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	if res.StatusCode() >= 300 {
		body := strings.TrimSpace(res.String())
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("ntfy returned %d: %s", res.StatusCode(), body)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, int, string) error { return nil }
func (noopService) NotifyBatchCompleted(context.Context, Completion) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error      { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
