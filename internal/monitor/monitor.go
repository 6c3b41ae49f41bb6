// Package monitor watches the clipboard table for new rows.
//
// A Monitor owns its own storage handle and is the only goroutine that
// writes through it. Each poll cycle it drains the deletion queue, fetches
// every row, purges image rows whose backing file has disappeared and
// reports the ids that were not present in the previous cycle. Handlers
// receive only ids and are expected to re-read the entry from storage.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"clipit/internal/logging"
	"clipit/internal/storage"
	"clipit/pkg/types"
)

const (
	// DefaultInterval is the pause between two poll cycles
	DefaultInterval = 10 * time.Millisecond

	// MaxDeleteAttempts bounds how often a queued deletion is retried
	MaxDeleteAttempts = 3
)

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrStopped        = errors.New("monitor stopped")
)

// Handler is called once per newly observed entry id
type Handler func(id int64)

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval sets the pause between poll cycles
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

// WithFileCheck replaces the check used to decide whether an image file
// still exists.
func WithFileCheck(exists func(path string) bool) Option {
	return func(m *Monitor) {
		m.exists = exists
	}
}

type Monitor struct {
	conn     storage.Querier
	interval time.Duration
	log      *slog.Logger
	exists   func(path string) bool

	started  atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	queueMu  sync.Mutex
	queue    []types.Entry
	attempts map[int64]int // failed deletions per id, drain only

	snapMu   sync.RWMutex
	snapshot []int64

	dispatch *dispatcher
}

// New creates a monitor polling through conn. conn must not be used by any
// other goroutine while the monitor runs.
func New(conn storage.Querier, opts ...Option) *Monitor {
	m := &Monitor{
		conn:     conn,
		interval: DefaultInterval,
		log:      slog.Default(),
		exists:   fileExists,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		dispatch: newDispatcher(),
		attempts: make(map[int64]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logging.Component(m.log, "monitor")
	return m
}

// Subscribe registers a handler for new entry ids. Handlers run on the
// dispatch goroutine, one id at a time, in discovery order.
func (m *Monitor) Subscribe(h Handler) {
	m.dispatch.subscribe(h)
}

// Enqueue defers the deletion of entry to the monitor goroutine. Safe to
// call from any goroutine.
func (m *Monitor) Enqueue(entries ...types.Entry) {
	m.queueMu.Lock()
	m.queue = append(m.queue, entries...)
	m.queueMu.Unlock()
}

// QueueLen returns the number of deletions waiting for the next cycle
func (m *Monitor) QueueLen() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

// Snapshot returns the ids observed at the end of the last cycle
func (m *Monitor) Snapshot() []int64 {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	out := make([]int64, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// Running reports whether the poll loop is active
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Start launches the poll loop on its own goroutine. A stopped monitor
// cannot be restarted.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		if m.stopped() {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	m.running.Store(true)
	go m.dispatch.run()
	go m.run(ctx)
	m.log.Debug("monitor started", "interval", m.interval)
	return nil
}

// Stop asks the loop to exit after its current cycle and waits until it
// has, so the caller may close the storage handle afterwards.
func (m *Monitor) Stop() {
	m.running.Store(false)
	m.stopOnce.Do(func() { close(m.stopCh) })
	if !m.started.CompareAndSwap(false, true) {
		<-m.done
		return
	}
	// never started
	close(m.done)
}

// Done is closed once the loop has exited
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) stopped() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	defer m.dispatch.close()
	defer m.running.Store(false)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for m.running.Load() {
		if _, err := m.Poll(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn("poll cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			m.log.Debug("monitor stopped", "reason", ctx.Err())
			return
		case <-m.stopCh:
			m.log.Debug("monitor stopped", "reason", "stop requested")
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one cycle and returns the ids seen for the first time, in
// discovery order. Each id is also handed to the subscribed handlers.
//
// A failed queued deletion does not end the cycle: the remaining steps still
// run and the deletion error is returned alongside the fresh ids.
func (m *Monitor) Poll(ctx context.Context) ([]int64, error) {
	drainErr := m.drain(ctx)

	rs, err := m.conn.Fetch(ctx, storage.Filter{})
	if err != nil {
		return nil, errors.Join(drainErr, fmt.Errorf("failed to fetch entries: %w", err))
	}

	current := make([]int64, 0, rs.Len())
	for _, entry := range rs.All() {
		if entry.Kind == types.KindImage && !m.exists(entry.ImagePath()) {
			if err := m.conn.Delete(ctx, entry); err != nil {
				m.log.Warn("failed to purge orphaned image entry", "id", entry.ID, "err", err)
			} else {
				m.log.Info("purged image entry with missing file", "id", entry.ID, "path", entry.ImagePath())
			}
			continue
		}
		current = append(current, entry.ID)
	}

	m.snapMu.Lock()
	previous := make(map[int64]struct{}, len(m.snapshot))
	for _, id := range m.snapshot {
		previous[id] = struct{}{}
	}
	m.snapshot = current
	m.snapMu.Unlock()

	var fresh []int64
	for _, id := range current {
		if _, ok := previous[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) > 0 {
		m.dispatch.emit(fresh)
	}
	return fresh, drainErr
}

// drain deletes every queued entry through the monitor's handle. Entries
// that fail go back to the front of the queue and are dropped after
// MaxDeleteAttempts failures.
func (m *Monitor) drain(ctx context.Context) error {
	m.queueMu.Lock()
	batch := m.queue
	m.queue = nil
	m.queueMu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	var (
		retry   []types.Entry
		errs    []error
		deleted int
	)
	for _, entry := range batch {
		if ctx.Err() != nil {
			retry = append(retry, entry)
			continue
		}
		err := m.conn.Delete(ctx, entry)
		if err == nil {
			delete(m.attempts, entry.ID)
			deleted++
			continue
		}

		errs = append(errs, fmt.Errorf("failed to delete queued entry %d: %w", entry.ID, err))
		m.attempts[entry.ID]++
		if m.attempts[entry.ID] >= MaxDeleteAttempts {
			m.log.Warn("giving up on queued deletion", "id", entry.ID, "attempts", m.attempts[entry.ID], "err", err)
			delete(m.attempts, entry.ID)
			continue
		}
		retry = append(retry, entry)
	}

	m.queueMu.Lock()
	m.queue = append(retry, m.queue...)
	m.queueMu.Unlock()

	if deleted > 0 {
		m.log.Debug("drained deletion queue", "count", deleted)
	}
	return errors.Join(errs...)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
