package clipboard

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/progrium/darwinkit/macos/appkit"
)

const darwinPollInterval = 500 * time.Millisecond

var (
	pasteboardText = appkit.PasteboardType("public.utf8-plain-text")
	pasteboardPNG  = appkit.PasteboardType("public.png")
)

type darwinSource struct {
	pasteboard  appkit.Pasteboard
	changeCount int
	mutex       sync.Mutex
}

func init() {
	// Ensure we're on the main thread for AppKit operations
	runtime.LockOSThread()
}

// NewSource returns the macOS pasteboard backend
func NewSource() Source {
	runtime.LockOSThread()

	return &darwinSource{
		pasteboard: appkit.Pasteboard_GeneralPasteboard(),
	}
}

func (s *darwinSource) Name() string { return "macOS pasteboard" }

func (s *darwinSource) Watch(ctx context.Context) <-chan Clip {
	s.mutex.Lock()
	s.changeCount = s.pasteboard.ChangeCount()
	s.mutex.Unlock()

	out := make(chan Clip)
	go func() {
		defer close(out)

		ticker := time.NewTicker(darwinPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				clip, ok := s.checkForChanges()
				if !ok {
					continue
				}
				select {
				case out <- clip:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *darwinSource) checkForChanges() (Clip, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current := s.pasteboard.ChangeCount()
	if current == s.changeCount {
		return Clip{}, false
	}
	slog.Debug("pasteboard changed", "from", s.changeCount, "to", current)
	s.changeCount = current

	clip := Clip{CapturedAt: time.Now()}
	if text := s.pasteboard.StringForType(pasteboardText); text != "" {
		clip.Text = text
		return clip, true
	}
	if data := s.pasteboard.DataForType(pasteboardPNG); len(data) > 0 {
		clip.Image = data
		return clip, true
	}
	return Clip{}, false
}

func (s *darwinSource) WriteText(text string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pasteboard.SetStringForType(text, pasteboardText)
	return nil
}

func (s *darwinSource) WriteImage(png []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pasteboard.SetDataForType(png, pasteboardPNG)
	return nil
}

func (s *darwinSource) Close() {}
