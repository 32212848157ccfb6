// Package connwatch tracks whether the agent's backends (the model
// provider, the embedding server) are reachable. Each watcher retries
// with exponential backoff at startup, then polls; transitions are
// logged and reported to an optional callback.
//
// Transport-level retries for a single request live in httpkit. This
// package covers outages measured in seconds to minutes.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Backoff controls startup retries and background polling.
type Backoff struct {
	InitialDelay time.Duration // first retry delay (default 2s)
	MaxDelay     time.Duration // cap on retry delay (default 60s)
	MaxRetries   int           // startup attempts before polling (default 10)
	PollInterval time.Duration // steady-state probe interval (default 60s)
	ProbeTimeout time.Duration // per-probe limit (default 10s)
}

// DefaultBackoff returns 2s doubling to 60s, ten startup attempts, and
// one probe a minute after that.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxRetries:   10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.MaxRetries <= 0 {
		b.MaxRetries = d.MaxRetries
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// Status is the health of one watched service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors one service.
type Watcher struct {
	name     string
	probe    ProbeFunc
	backoff  Backoff
	onChange func(Status)
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Status returns the latest probe outcome.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	return w.Status().Ready
}

// Stop cancels the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

// check runs one probe and records it. It reports whether the ready
// state changed.
func (w *Watcher) check(ctx context.Context) (Status, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	err := w.probe(probeCtx)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.status.Ready
	w.status.Ready = err == nil
	w.status.LastCheck = time.Now()
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	return w.status, was != w.status.Ready
}

func (w *Watcher) report(s Status, attempt int) {
	if s.Ready {
		w.logger.Info("service ready", "service", w.name, "attempt", attempt)
	} else {
		w.logger.Warn("service unreachable", "service", w.name, "error", s.LastError)
	}
	if w.onChange != nil {
		w.onChange(s)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.InitialDelay
	for attempt := 1; attempt <= w.backoff.MaxRetries; attempt++ {
		s, changed := w.check(ctx)
		if s.Ready {
			if changed {
				w.report(s, attempt)
			}
			break
		}
		w.logger.Debug("startup probe failed",
			"service", w.name,
			"attempt", attempt,
			"next_delay", delay,
			"error", s.LastError,
		)
		if attempt == w.backoff.MaxRetries {
			w.report(s, attempt)
			break
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = min(delay*2, w.backoff.MaxDelay)
	}

	ticker := time.NewTicker(w.backoff.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s, changed := w.check(ctx); changed {
				w.report(s, 0)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Manager owns a set of watchers.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	onChange func(Status)
	logger   *slog.Logger
}

// NewManager creates a manager. onChange, if non-nil, is called from
// the watcher goroutine on every ready/unready transition.
func NewManager(onChange func(Status), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		watchers: make(map[string]*Watcher),
		onChange: onChange,
		logger:   logger,
	}
}

// Watch starts probing a service until ctx is cancelled or the manager
// is stopped. Watching a name again replaces the earlier watcher.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc, b Backoff) *Watcher {
	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:     name,
		probe:    probe,
		backoff:  b.withDefaults(),
		onChange: m.onChange,
		logger:   m.logger,
		status:   Status{Name: name},
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	old := m.watchers[name]
	m.watchers[name] = w
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(watchCtx)
	return w
}

// Status returns every watched service, sorted by name.
func (m *Manager) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop shuts down all watchers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
