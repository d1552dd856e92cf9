package services

import (
	"github.com/dmitrijs2005/microblog/internal/logging"
	"github.com/dmitrijs2005/microblog/internal/server/mailer"
	"github.com/dmitrijs2005/microblog/internal/server/metrics"
	"github.com/dmitrijs2005/microblog/internal/timex"
)

// deps are the collaborators shared by the services. Zero values are
// replaced with no-op or system implementations.
type deps struct {
	clock    timex.Clock
	notifier mailer.Notifier
	metrics  metrics.Recorder
	log      logging.Logger
}

// Option customises a service.
type Option func(*deps)

func WithClock(c timex.Clock) Option        { return func(d *deps) { d.clock = c } }
func WithNotifier(n mailer.Notifier) Option { return func(d *deps) { d.notifier = n } }
func WithMetrics(m metrics.Recorder) Option { return func(d *deps) { d.metrics = m } }
func WithLogger(l logging.Logger) Option    { return func(d *deps) { d.log = l } }

type nopNotifier struct{}

func (nopNotifier) Notify(mailer.Message) {}

func buildDeps(opts []Option) deps {
	d := deps{
		clock:    timex.SystemClock{},
		notifier: nopNotifier{},
		metrics:  metrics.Nop(),
		log:      logging.Nop(),
	}
	for _, o := range opts {
		o(&d)
	}
	return d
}
