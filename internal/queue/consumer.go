package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	prefetch   = 50
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// AuditConsumer reads TodoEvents from a queue and appends one line per
// event to an audit log file.
type AuditConsumer struct {
	URL     string
	Queue   string
	LogPath string
	Log     *logrus.Logger
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff whenever the broker goes away.  Messages that cannot be handled
// are rejected without requeue so a poison message cannot loop.
func (a *AuditConsumer) Run(ctx context.Context) error {
	wait := minBackoff
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Log.WithError(err).WithField("retry_in", wait.String()).Warn("audit consumer disconnected")
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
		wait = nextBackoff(wait)
	}
}

// session runs one connection from dial to close.
func (a *AuditConsumer) session(ctx context.Context) error {
	conn, err := amqp.Dial(a.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if err := declareQueue(ch, a.Queue); err != nil {
		return err
	}
	deliveries, err := ch.Consume(a.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	a.Log.WithField("queue", a.Queue).Info("audit consumer connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			a.deliver(d)
		}
	}
}

func (a *AuditConsumer) deliver(d amqp.Delivery) {
	if err := a.handleMessage(d.Body); err != nil {
		a.Log.WithError(err).WithField("message_id", d.MessageId).Error("audit event rejected")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (a *AuditConsumer) handleMessage(body []byte) error {
	var ev TodoEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event has no type")
	}
	return appendLine(a.LogPath, FormatAuditLine(ev))
}

// FormatAuditLine renders an event as one log line.
func FormatAuditLine(ev TodoEvent) string {
	return fmt.Sprintf("[%s] %s | event_id=%s | todo_id=%d | completed=%t | description=%q\n",
		ev.OccurredAt, ev.Type, ev.ID, ev.Todo.ID, ev.Todo.Completed, ev.Todo.Description)
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(line)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
