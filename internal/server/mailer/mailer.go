// Package mailer delivers account notifications. Delivery is best effort:
// the Dispatcher sends in the background, logs failures, and never reports
// them back to the operation that triggered the message.
package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/microblog/internal/logging"
	"github.com/dmitrijs2005/microblog/internal/server/metrics"
)

// Kind identifies a notification template.
type Kind string

const (
	KindAccountActivation Kind = "account_activation"
	KindPasswordReset     Kind = "password_reset"
	KindPasswordChanged   Kind = "password_changed"
)

// Message carries the data a template needs. Token is empty for
// password_changed.
type Message struct {
	Kind   Kind
	UserID string
	To     string
	Name   string
	Token  string
	Link   string
}

// Sender renders and delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier is what services depend on.
type Notifier interface {
	Notify(msg Message)
}

// Dispatcher sends messages asynchronously through a Sender.
type Dispatcher struct {
	sender  Sender
	log     logging.Logger
	metrics metrics.Recorder
	timeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher returns a Dispatcher. Each send is bounded by timeout.
func NewDispatcher(sender Sender, log logging.Logger, m metrics.Recorder, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		log:     log.With("module", "mailer"),
		metrics: m,
		timeout: timeout,
	}
}

// Notify queues msg for delivery and returns immediately.
func (d *Dispatcher) Notify(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, msg); err != nil {
			d.metrics.RecordMailFailure(string(msg.Kind))
			d.log.Error(ctx, "mail delivery failed", "kind", msg.Kind, "user_id", msg.UserID, "error", err)
			return
		}
		d.metrics.RecordMailSent(string(msg.Kind))
		d.log.Debug(ctx, "mail delivered", "kind", msg.Kind, "user_id", msg.UserID)
	}()
}

// Wait blocks until every queued message has been attempted or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
