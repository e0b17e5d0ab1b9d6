package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelstream/internal/config"
	"reelstream/internal/queue"
)

const userAgent = "Reelstream-Go/0.1.0"

// Service is the notification surface the scheduler publishes through.
type Service interface {
	NotifyJobCompleted(ctx context.Context, displayName string) error
	NotifyJobFailed(ctx context.Context, displayName, reason string) error
	NotifyQueueDrained(ctx context.Context) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		onJobCompleted: cfg.Notifications.JobCompleted,
		onJobFailed:    cfg.Notifications.JobFailed,
		onQueueDrained: cfg.Notifications.QueueDrained,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	onJobCompleted bool
	onJobFailed    bool
	onQueueDrained bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, displayName string) error {
	if !n.onJobCompleted {
		return nil
	}
	displayName = strings.TrimSpace(displayName)
	data := payload{
		title:   "Reelstream - Transcode Complete",
		message: fmt.Sprintf("Ready to stream: %s", displayName),
		tags:    []string{"reelstream", "transcode", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, displayName, reason string) error {
	if !n.onJobFailed {
		return nil
	}
	displayName = strings.TrimSpace(displayName)
	message := fmt.Sprintf("Transcode failed: %s", displayName)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:    "Reelstream - Transcode Failed",
		message:  message,
		tags:     []string{"reelstream", "transcode", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context) error {
	if !n.onQueueDrained {
		return nil
	}
	data := payload{
		title:   "Reelstream - Queue Drained",
		message: "All queued transcodes finished",
		tags:    []string{"reelstream", "queue", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelstream - Test",
		message:  "Notification system test",
		tags:     []string{"reelstream", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string) error      { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyQueueDrained(context.Context) error              { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }

// SchedulerAdapter bridges the Service onto the scheduler's notifier
// callbacks with a bounded send timeout so a slow ntfy endpoint never
// stalls a worker slot.
type SchedulerAdapter struct {
	Service Service
	Timeout time.Duration
}

func (a *SchedulerAdapter) sendCtx() (context.Context, context.CancelFunc) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (a *SchedulerAdapter) JobCompleted(job *queue.Job) {
	ctx, cancel := a.sendCtx()
	defer cancel()
	_ = a.Service.NotifyJobCompleted(ctx, job.DisplayName)
}

func (a *SchedulerAdapter) JobFailed(job *queue.Job, message string) {
	ctx, cancel := a.sendCtx()
	defer cancel()
	_ = a.Service.NotifyJobFailed(ctx, job.DisplayName, message)
}

func (a *SchedulerAdapter) QueueDrained() {
	ctx, cancel := a.sendCtx()
	defer cancel()
	_ = a.Service.NotifyQueueDrained(ctx)
}
