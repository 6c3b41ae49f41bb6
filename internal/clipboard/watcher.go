package clipboard

import (
	"context"
	"crypto/sha256"
	"log/slog"

	"clipit/internal/logging"
	"clipit/pkg/types"
)

// Sink receives novel captures
type Sink interface {
	PushNewCapture(ctx context.Context, kind types.Kind, payload string) (types.Entry, bool, error)
	PushNewImage(ctx context.Context, png []byte) (types.Entry, bool, error)
}

// Watcher forwards clipboard changes from a Source to a Sink, skipping
// content identical to the previous capture.
type Watcher struct {
	source Source
	sink   Sink
	log    *slog.Logger

	lastText  string
	lastImage [32]byte
}

func NewWatcher(source Source, sink Sink, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		source:    source,
		sink:      sink,
		log:       logging.Component(log, "watcher").With("source", source.Name()),
		lastImage: sha256.Sum256(nil),
	}
}

// Run blocks until ctx is done or the source stops
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watching clipboard")
	for clip := range w.source.Watch(ctx) {
		if err := w.handle(ctx, clip); err != nil {
			w.log.Error("failed to store clipboard content", "err", err)
		}
	}
	w.log.Info("stopped watching clipboard")
	return ctx.Err()
}

func (w *Watcher) handle(ctx context.Context, clip Clip) error {
	if len(clip.Image) > 0 {
		sum := sha256.Sum256(clip.Image)
		if sum == w.lastImage {
			return nil
		}
		w.lastImage = sum

		entry, stored, err := w.sink.PushNewImage(ctx, clip.Image)
		if err != nil {
			return err
		}
		if stored {
			w.log.Debug("image captured", "id", entry.ID, "path", entry.FilePath)
		}
		return nil
	}

	kind, value, ok := Classify(clip.Text)
	if !ok || value == w.lastText {
		return nil
	}
	w.lastText = value

	entry, stored, err := w.sink.PushNewCapture(ctx, kind, value)
	if err != nil {
		return err
	}
	if stored {
		w.log.Debug("text captured", "id", entry.ID, "kind", kind)
	}
	return nil
}
