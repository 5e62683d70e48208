// Package quota guards calls to the remote generation service with two
// persisted rolling windows (per minute and per day).
//
// Reserve is a single check-and-increment: a caller that is allowed through
// has already been counted. Any failure to read or write the window state is
// reported as a denial, never as an allowance.
package quota

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/metrics"
)

const (
	MinutePeriod = time.Minute
	DayPeriod    = 24 * time.Hour

	ReasonMinute      = "per-minute limit reached"
	ReasonDay         = "per-day limit reached"
	ReasonUnavailable = "quota state unavailable"
)

// ErrRateLimited matches every DeniedError via errors.Is.
var ErrRateLimited = errors.NewPlain("rate limited")

// DeniedError is returned by Gate.Reserve when a call must not be made.
type DeniedError struct {
	Reason string
	Window string
	Err    error
}

func (e *DeniedError) Error() string {
	if e.Err != nil {
		return "quota denied: " + e.Reason + ": " + e.Err.Error()
	}
	return "quota denied: " + e.Reason
}

func (e *DeniedError) Is(target error) bool { return target == ErrRateLimited }

func (e *DeniedError) Unwrap() error { return e.Err }

type Limits struct {
	PerMinute int
	PerDay    int
}

// Counter is one window: how many calls since WindowStart.
type Counter struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart"`
}

// Window is the persisted quota record.
type Window struct {
	Minute Counter `json:"minute"`
	Day    Counter `json:"day"`
}

// roll resets every counter whose window is older than its period. A zero
// Window rolls on first use, which is how the record is lazily created.
func (w *Window) roll(now time.Time) {
	if now.Sub(w.Minute.WindowStart) > MinutePeriod {
		w.Minute = Counter{Count: 0, WindowStart: now}
	}
	if now.Sub(w.Day.WindowStart) > DayPeriod {
		w.Day = Counter{Count: 0, WindowStart: now}
	}
}

// Reserve applies rollover, checks both limits and on success counts the call
// in both windows.
func (w *Window) Reserve(now time.Time, limits Limits) error {
	w.roll(now)
	if w.Minute.Count >= limits.PerMinute {
		return &DeniedError{Reason: ReasonMinute, Window: "minute"}
	}
	if w.Day.Count >= limits.PerDay {
		return &DeniedError{Reason: ReasonDay, Window: "day"}
	}
	w.Minute.Count++
	w.Day.Count++
	return nil
}

// Store persists the Window. Update must load, run fn and save as one unit,
// skipping the save when fn fails and returning fn's error unchanged.
type Store interface {
	Update(ctx context.Context, fn func(w *Window) error) error
	View(ctx context.Context) (Window, error)
}

// Usage is a read-only snapshot for dashboards and the CLI.
type Usage struct {
	MinuteUsed  int `json:"minuteUsed"`
	MinuteLimit int `json:"minuteLimit"`
	DayUsed     int `json:"dayUsed"`
	DayLimit    int `json:"dayLimit"`
}

type Gate struct {
	mu     sync.Mutex
	store  Store
	limits Limits
	now    func() time.Time
	log    *logrus.Entry
}

type Option func(*Gate)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func NewGate(store Store, limits Limits, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		limits: limits,
		now:    time.Now,
		log:    logging.Module("quota"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reserve returns nil if the call may proceed (and has been counted) or a
// *DeniedError otherwise.
func (g *Gate) Reserve(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	err := g.store.Update(ctx, func(w *Window) error {
		return w.Reserve(now, g.limits)
	})
	if err == nil {
		return nil
	}

	var denied *DeniedError
	if errors.As(err, &denied) {
		metrics.QuotaDeniedTotal.WithLabelValues(denied.Window).Inc()
		g.log.WithField("reason", denied.Reason).Warn("⏱️ generation call denied")
		return denied
	}

	metrics.QuotaDeniedTotal.WithLabelValues("store").Inc()
	g.log.WithError(err).Error("quota state unavailable, denying call")
	return &DeniedError{Reason: ReasonUnavailable, Window: "store", Err: err}
}

// Usage reports current consumption without counting a call.
func (g *Gate) Usage(ctx context.Context) (Usage, error) {
	w, err := g.store.View(ctx)
	if err != nil {
		return Usage{}, errors.Wrap(err, "read quota window")
	}
	w.roll(g.now())
	return Usage{
		MinuteUsed:  w.Minute.Count,
		MinuteLimit: g.limits.PerMinute,
		DayUsed:     w.Day.Count,
		DayLimit:    g.limits.PerDay,
	}, nil
}
