package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log/slog"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue email events are routed to.
const DefaultQueue = "email.outbound"

// maxDialTimeout caps a broker dial when the caller's ctx has no deadline.
const maxDialTimeout = 30 * time.Second

// Publisher sends EmailEvents to RabbitMQ over one long-lived channel.
// The connection is dialed lazily and re-dialed after a failed publish,
// so the API keeps serving while the broker is down.
type Publisher struct {
    url   string
    queue string
    log   *slog.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewPublisher(url, queue string, log *slog.Logger) *Publisher {
    if queue == "" {
        queue = DefaultQueue
    }
    if log == nil {
        log = slog.Default()
    }
    return &Publisher{url: url, queue: queue, log: log}
}

// PasswordReset publishes a reset link for to.
func (p *Publisher) PasswordReset(ctx context.Context, to, link string) error {
    return p.PublishJSON(ctx, EmailEvent{Kind: KindPasswordReset, To: to, Link: link, CreatedAt: time.Now().UTC()})
}

// AffiliateInvite publishes an invite link for to.
func (p *Publisher) AffiliateInvite(ctx context.Context, to, link string) error {
    return p.PublishJSON(ctx, EmailEvent{Kind: KindAffiliateInvite, To: to, Link: link, CreatedAt: time.Now().UTC()})
}

// PublishJSON marshals v and publishes it as a persistent message on the
// default exchange, routed to the configured queue.
func (p *Publisher) PublishJSON(ctx context.Context, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    if err := p.ensureChannel(ctx); err != nil {
        return err
    }
    err = p.ch.PublishWithContext(ctx,
        "",      // default exchange
        p.queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            Timestamp:    time.Now().UTC(),
            Body:         body,
        })
    if err != nil {
        p.log.Warn("rabbitmq publish failed", slog.String("queue", p.queue), slog.String("error", err.Error()))
        p.reset()
        return fmt.Errorf("publish to %s: %w", p.queue, err)
    }
    return nil
}

func (p *Publisher) ensureChannel(ctx context.Context) error {
    if p.ch != nil && !p.ch.IsClosed() {
        return nil
    }
    p.reset()

    timeout, err := dialTimeout(ctx)
    if err != nil {
        return fmt.Errorf("dial rabbitmq: %w", err)
    }
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
    if err != nil {
        return fmt.Errorf("dial rabbitmq: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return fmt.Errorf("open channel: %w", err)
    }
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return fmt.Errorf("declare queue %s: %w", p.queue, err)
    }
    p.conn, p.ch = conn, ch
    return nil
}

// dialTimeout bounds a dial by the ctx deadline.
func dialTimeout(ctx context.Context) (time.Duration, error) {
    if err := ctx.Err(); err != nil {
        return 0, err
    }
    deadline, ok := ctx.Deadline()
    if !ok {
        return maxDialTimeout, nil
    }
    left := time.Until(deadline)
    if left <= 0 {
        return 0, context.DeadlineExceeded
    }
    return min(left, maxDialTimeout), nil
}

func (p *Publisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}
