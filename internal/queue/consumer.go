package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// NotificationLog appends one human-readable line per event to
// <dir>/notifications.log.
type NotificationLog struct {
    Dir string
}

// StartEventConsumer consumes QueueName until ctx is cancelled, redialling
// with exponential backoff (capped at 30s) whenever the broker goes away.
// Messages that cannot be handled are rejected without requeue.
func StartEventConsumer(ctx context.Context, url string, sink NotificationLog, log logrus.FieldLogger) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.WithError(err).Warnf("event-consumer: dial failed; retrying in %s", backoff)
            select {
            case <-ctx.Done():
                return ctx.Err()
            case <-time.After(backoff):
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, sink, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.WithError(err).Warn("event-consumer: consume loop ended; reconnecting")
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(2 * time.Second):
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink NotificationLog, log logrus.FieldLogger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.WithError(err).Warn("event-consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := sink.Handle(d.Body); err != nil {
                log.WithError(err).WithField("message_id", d.MessageId).Error("event-consumer: handle message failed")
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one event body and appends its line to the log file.
func (n NotificationLog) Handle(body []byte) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    dir := n.Dir
    if dir == "" {
        dir = "logs"
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", dir, err)
    }
    f, err := os.OpenFile(filepath.Join(dir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders ev as a single newline-terminated log line.
func FormatLine(ev Event) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | reservation_id=%d | date=%s | user_id=%d",
        ev.OccurredAt, ev.Type, ev.ReservationID, ev.ReservationDate, ev.UserID)
    if ev.TargetUserID != 0 {
        fmt.Fprintf(&b, " | target_user_id=%d", ev.TargetUserID)
    }
    if ev.TransferID != 0 {
        fmt.Fprintf(&b, " | transfer_id=%d", ev.TransferID)
    }
    if len(ev.Spots) > 0 {
        parts := make([]string, len(ev.Spots))
        for i, s := range ev.Spots {
            parts[i] = fmt.Sprint(s)
        }
        fmt.Fprintf(&b, " | spots=[%s]", strings.Join(parts, ","))
    }
    if ev.Seats != 0 {
        fmt.Fprintf(&b, " | seats=%d", ev.Seats)
    }
    b.WriteByte('\n')
    return b.String()
}
