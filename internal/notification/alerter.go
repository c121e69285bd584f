package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"macrodash/internal/model"
)

const (
	// DefaultInterval is the minimum gap between two alerts with the same key.
	DefaultInterval = time.Hour

	queueSize   = 32
	sendTimeout = 15 * time.Second
)

// Alerter queues alerts and fans them out to every notifier on a single
// background goroutine. Alerts with a key already alerted within the
// interval are suppressed, and a full queue drops the alert.
type Alerter struct {
	notifiers []Notifier
	interval  time.Duration
	clock     clockwork.Clock

	mu     sync.Mutex
	last   map[string]time.Time
	closed bool

	queue chan Alert
	done  chan struct{}
}

// NewAlerter starts the delivery goroutine. interval <= 0 uses
// DefaultInterval; a nil clock uses real time.
func NewAlerter(interval time.Duration, clock clockwork.Clock, notifiers ...Notifier) *Alerter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &Alerter{
		notifiers: notifiers,
		interval:  interval,
		clock:     clock,
		last:      make(map[string]time.Time),
		queue:     make(chan Alert, queueSize),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify queues alert. It reports whether the alert was accepted.
func (a *Alerter) Notify(alert Alert) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	now := a.clock.Now()
	if alert.Key != "" {
		if t, ok := a.last[alert.Key]; ok && now.Sub(t) < a.interval {
			return false
		}
	}
	select {
	case a.queue <- alert:
		if alert.Key != "" {
			a.last[alert.Key] = now
		}
		return true
	default:
		log.Printf("[notify] queue full, dropping alert %q", alert.Title)
		return false
	}
}

// RefreshFailed matches the cache's refresh error hook. A failure served
// from a prior entry is a warning; one with nothing to serve is critical.
func (a *Alerter) RefreshFailed(key model.Key, err error, stale bool) {
	k := key
	alert := Alert{
		Level:   AlertCritical,
		Title:   fmt.Sprintf("%s refresh failed", key),
		Message: "no cached series to fall back on",
		Key:     key.String(),
		Event:   EventRefreshFailed,
		Series:  &k,
		Stale:   stale,
		Err:     err.Error(),
	}
	if stale {
		alert.Level = AlertWarning
		alert.Message = "serving stale series"
	}
	a.Notify(alert)
}

func (a *Alerter) run() {
	defer close(a.done)
	for alert := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := a.send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed for %q: %v", alert.Title, err)
		}
		cancel()
	}
}

func (a *Alerter) send(ctx context.Context, alert Alert) error {
	var errs error
	for _, n := range a.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (a *Alerter) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
