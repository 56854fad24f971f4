package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "net/url"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumerConfig tells the email worker where to read and write.
type ConsumerConfig struct {
    URL    string
    Queue  string
    LogDir string
}

// StartEmailConsumer connects to RabbitMQ, declares the queue (durable) and
// consumes email events until ctx is cancelled. Each event is appended to
// <LogDir>/email.log as one line; mail transport proper lives outside this
// service. Broker failures are retried with exponential backoff.
func StartEmailConsumer(ctx context.Context, cfg ConsumerConfig, log *slog.Logger) error {
    if cfg.Queue == "" {
        cfg.Queue = DefaultQueue
    }
    if cfg.LogDir == "" {
        cfg.LogDir = "logs"
    }
    if log == nil {
        log = slog.Default()
    }

    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(cfg.URL)
        if err != nil {
            log.Warn("email-consumer: dial broker failed", slog.String("error", err.Error()), slog.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, cfg, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("email-consumer: consume loop ended, reconnecting", slog.String("error", err.Error()))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, log *slog.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("email-consumer: set QoS failed", slog.String("error", err.Error()))
    }
    if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, cfg.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := handleMessage(cfg.LogDir, d.Body); err != nil {
            log.Error("email-consumer: handle message failed", slog.String("error", err.Error()))
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func handleMessage(dir string, body []byte) error {
    var ev EmailEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.To == "" || ev.Link == "" {
        return fmt.Errorf("incomplete email event kind=%q", ev.Kind)
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", dir, err)
    }
    f, err := os.OpenFile(filepath.Join(dir, "email.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev EmailEvent) string {
    return fmt.Sprintf("[%s] Email queued | kind=%s | to=%s | link=%s\n",
        ev.CreatedAt.UTC().Format(time.RFC3339), ev.Kind, ev.To, redactLink(ev.Link))
}

// redactLink masks the reset token so the log never holds a usable link.
func redactLink(link string) string {
    u, err := url.Parse(link)
    if err != nil {
        return "[unparseable]"
    }
    q := u.Query()
    if !q.Has("token") {
        return link
    }
    q.Set("token", "REDACTED")
    u.RawQuery = q.Encode()
    return u.String()
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
