package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Message is one outbound notification. Delivery is best-effort: a failure
// here never fails the authentication decision that produced it.
type Message struct {
	UserID    string
	Identity  string
	EventType string
	Detail    map[string]string
}

// Sender delivers a notification to its destination.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Throttle decides whether a notification for an identity may be sent now.
// Implemented by the same sliding-window limiter that governs authentication
// actions, keyed under the notify action.
type Throttle interface {
	AllowNotify(ctx context.Context, identity string) bool
}

// Ledger records delivery outcomes so that failing sends feed back into the
// notify throttle window.
type Ledger interface {
	RecordNotify(ctx context.Context, identity string, success bool, reason string)
}

// Dispatcher fans notifications out to a background worker over a bounded
// queue. Enqueue never blocks and never returns an error; when the queue is
// full the message is dropped with a warning.
type Dispatcher struct {
	ch       chan Message
	sender   Sender
	throttle Throttle
	ledger   Ledger
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(sender Sender, throttle Throttle, ledger Ledger, logger *slog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		ch:       make(chan Message, queueSize),
		sender:   sender,
		throttle: throttle,
		ledger:   ledger,
		logger:   logger,
	}
}

// Start runs the delivery worker until the context is cancelled
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case msg := <-d.ch:
				d.deliver(ctx, msg)
			case <-ctx.Done():
				d.logger.Info("notification dispatcher stopped")
				return
			}
		}
	}()
}

// Wait blocks until the worker has exited
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue queues a message for delivery. Fire-and-forget: a full queue drops
// the message rather than blocking the caller.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.ch <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message",
			slog.String("event_type", msg.EventType),
			slog.String("user_id", msg.UserID))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if d.throttle != nil && !d.throttle.AllowNotify(ctx, msg.Identity) {
		d.logger.Warn("notification throttled",
			slog.String("event_type", msg.EventType),
			slog.String("user_id", msg.UserID))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := d.sender.Send(sendCtx, msg)
	if err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("event_type", msg.EventType),
			slog.String("user_id", msg.UserID),
			slog.Any("error", err))
		if d.ledger != nil {
			d.ledger.RecordNotify(ctx, msg.Identity, false, "delivery_failed")
		}
		return
	}

	if d.ledger != nil {
		d.ledger.RecordNotify(ctx, msg.Identity, true, "")
	}
	d.logger.Info("notification delivered",
		slog.String("event_type", msg.EventType),
		slog.String("user_id", msg.UserID))
}
