package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"clipit/internal/clipboard"
	"clipit/internal/logging"
	"clipit/internal/monitor"
	"clipit/internal/storage"
	"clipit/pkg/types"
)

// Store is the main-goroutine storage handle used by the service
type Store interface {
	storage.Querier
	Latest(ctx context.Context) (types.Entry, error)
}

// Option configures a ClipboardService
type Option func(*ClipboardService)

// WithSource sets the clipboard used by Paste
func WithSource(src clipboard.Source) Option {
	return func(s *ClipboardService) { s.source = src }
}

// WithImageCache sets where captured images are written
func WithImageCache(c *clipboard.ImageCache) Option {
	return func(s *ClipboardService) { s.images = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *ClipboardService) { s.log = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *ClipboardService) { s.now = now }
}

// WithRetention sets the initial retention policy
func WithRetention(r Retention) Option {
	return func(s *ClipboardService) { s.retention = r }
}

// ClipboardService is the boundary used by the presentation layer and the
// clipboard watcher. Reads and single deletions go through the main
// handle; bulk deletions are deferred to the monitor goroutine.
type ClipboardService struct {
	store   Store
	monitor *monitor.Monitor
	source  clipboard.Source
	images  *clipboard.ImageCache
	log     *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	retention Retention

	// pushMu makes the compare with the latest entry and the save atomic
	pushMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a ClipboardService. store must not be the handle given to mon.
func New(store Store, mon *monitor.Monitor, opts ...Option) *ClipboardService {
	s := &ClipboardService{
		store:   store,
		monitor: mon,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "service")
	return s
}

// RegisterHandler subscribes h to new entry notifications
func (s *ClipboardService) RegisterHandler(h EntryHandler) {
	s.monitor.Subscribe(h.HandleNewEntry)
}

// Start launches the monitor and the retention loop
func (s *ClipboardService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := s.monitor.Start(ctx); err != nil {
		cancel()
		return &ClipboardError{
			Op:      "Start",
			Message: "failed to start monitor",
			Err:     err,
		}
	}
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.retentionLoop(ctx)
	}()
	return nil
}

// Stop stops the monitor and waits for it to exit. The storage handles may
// be closed once Stop returns.
func (s *ClipboardService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.monitor.Stop()
	s.wg.Wait()
}

// FetchEntryByID reads one entry through the main handle
func (s *ClipboardService) FetchEntryByID(ctx context.Context, id int64) (types.Entry, error) {
	if id <= 0 {
		return types.Entry{}, &ClipboardError{Op: "FetchEntryByID", ID: id, Message: "invalid id", Err: storage.ErrNotFound}
	}

	rs, err := s.store.Fetch(ctx, storage.Filter{ID: id})
	if err != nil {
		return types.Entry{}, &ClipboardError{Op: "FetchEntryByID", ID: id, Message: "failed to fetch entry", Err: err}
	}
	entry, err := rs.First()
	if err != nil {
		return types.Entry{}, &ClipboardError{Op: "FetchEntryByID", ID: id, Message: "entry not found", Err: err}
	}
	return entry, nil
}

// List returns the entries matching filter in insertion order
func (s *ClipboardService) List(ctx context.Context, filter storage.Filter) (*storage.ResultSet, error) {
	rs, err := s.store.Fetch(ctx, filter)
	if err != nil {
		return nil, &ClipboardError{Op: "List", Message: "failed to fetch entries", Err: err}
	}
	return rs, nil
}

// DeleteEntry removes entry immediately through the main handle
func (s *ClipboardService) DeleteEntry(ctx context.Context, entry types.Entry) error {
	if err := s.store.Delete(ctx, entry); err != nil {
		return &ClipboardError{Op: "DeleteEntry", ID: entry.ID, Message: "failed to delete entry", Err: err}
	}
	s.log.Debug("entry deleted", "id", entry.ID)
	return nil
}

// EnqueueForDeletion defers deletion to the monitor's next cycle
func (s *ClipboardService) EnqueueForDeletion(entries ...types.Entry) {
	s.monitor.Enqueue(entries...)
}

// Purge queues every current entry for deletion and returns how many
func (s *ClipboardService) Purge(ctx context.Context) (int, error) {
	rs, err := s.store.Fetch(ctx, storage.Filter{})
	if err != nil {
		return 0, &ClipboardError{Op: "Purge", Message: "failed to fetch entries", Err: err}
	}
	s.EnqueueForDeletion(rs.All()...)
	s.log.Info("purge queued", "count", rs.Len())
	return rs.Len(), nil
}

// PushNewCapture stores a capture unless it repeats the most recent entry.
// The returned bool reports whether a row was written.
func (s *ClipboardService) PushNewCapture(ctx context.Context, kind types.Kind, payload string) (types.Entry, bool, error) {
	if _, err := types.ParseKind(string(kind)); err != nil {
		return types.Entry{}, false, &ClipboardError{Op: "PushNewCapture", Message: "unsupported kind", Err: err}
	}
	if payload == "" {
		return types.Entry{}, false, nil
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	latest, err := s.store.Latest(ctx)
	switch {
	case err == nil:
		if latest.Kind == kind && latest.Payload == payload {
			return latest, false, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return types.Entry{}, false, &ClipboardError{Op: "PushNewCapture", Message: "failed to read latest entry", Err: err}
	}

	entry := types.NewEntry(kind, payload, s.now())
	if kind == types.KindImage {
		entry.FilePath = payload
	}
	if err := s.store.Save(ctx, &entry); err != nil {
		return types.Entry{}, false, &ClipboardError{Op: "PushNewCapture", Message: "failed to store entry", Err: err}
	}
	s.log.Debug("capture stored", "id", entry.ID, "kind", kind)
	return entry, true, nil
}

// PushNewImage writes png to the image cache and stores an image entry
// pointing at it.
func (s *ClipboardService) PushNewImage(ctx context.Context, png []byte) (types.Entry, bool, error) {
	if s.images == nil {
		return types.Entry{}, false, &ClipboardError{Op: "PushNewImage", Message: "cannot store image", Err: ErrNoImageCache}
	}
	if len(png) == 0 {
		return types.Entry{}, false, nil
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	latest, err := s.store.Latest(ctx)
	switch {
	case err == nil:
		if latest.Kind == types.KindImage && clipboard.SameImage(latest.Payload, png) {
			return latest, false, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return types.Entry{}, false, &ClipboardError{Op: "PushNewImage", Message: "failed to read latest entry", Err: err}
	}

	at := s.now()
	name, path, err := s.images.Store(png, at)
	if err != nil {
		return types.Entry{}, false, &ClipboardError{Op: "PushNewImage", Message: "failed to cache image", Err: err}
	}

	entry := types.Entry{Kind: types.KindImage, Payload: name, FilePath: path, CapturedAt: at.Unix()}
	if err := s.store.Save(ctx, &entry); err != nil {
		os.Remove(path)
		return types.Entry{}, false, &ClipboardError{Op: "PushNewImage", Message: "failed to store entry", Err: err}
	}
	s.log.Debug("image stored", "id", entry.ID, "path", path)
	return entry, true, nil
}

// Paste puts the entry back on the system clipboard and moves it to the
// top of the history: the old row is deleted and the content stored again
// as the newest entry. The watcher's own capture of the same content is
// then a duplicate of the latest entry and is skipped.
func (s *ClipboardService) Paste(ctx context.Context, id int64) error {
	if s.source == nil {
		return &ClipboardError{Op: "Paste", ID: id, Message: "cannot write clipboard", Err: ErrNoSource}
	}

	entry, err := s.FetchEntryByID(ctx, id)
	if err != nil {
		return err
	}

	var png []byte
	if entry.Kind == types.KindImage {
		png, err = os.ReadFile(entry.ImagePath())
		if err != nil {
			return &ClipboardError{Op: "Paste", ID: id, Message: "failed to read image", Err: err}
		}
		err = s.source.WriteImage(png)
	} else {
		err = s.source.WriteText(entry.Payload)
	}
	if err != nil {
		return &ClipboardError{Op: "Paste", ID: id, Message: "failed to set clipboard content", Err: err}
	}

	if err := s.DeleteEntry(ctx, entry); err != nil {
		return err
	}

	var moved types.Entry
	if entry.Kind == types.KindImage {
		moved, _, err = s.PushNewImage(ctx, png)
	} else {
		moved, _, err = s.PushNewCapture(ctx, entry.Kind, entry.Payload)
	}
	if err != nil {
		return err
	}
	s.log.Debug("entry pasted", "id", id, "now", moved.ID)
	return nil
}
