// Package clipboard observes the system clipboard and turns its content
// into history entries.
//
// Build constraints select the Source implementation:
//
//	source_darwin.go    macOS pasteboard change count via darwinkit
//	source_x.go         Linux and Windows via golang.design/x/clipboard
//	source_headless.go  every other platform
package clipboard

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupported = errors.New("clipboard not available")

// Clip is raw clipboard content as read from the system. Exactly one of
// Text and Image is set.
type Clip struct {
	Text       string
	Image      []byte // PNG encoded
	CapturedAt time.Time
}

// Source is a platform clipboard backend
type Source interface {
	// Name returns a human-readable name for the backend
	Name() string

	// Watch emits clipboard content every time it changes until ctx is
	// done, then closes the channel.
	Watch(ctx context.Context) <-chan Clip

	// WriteText replaces the clipboard with text
	WriteText(text string) error

	// WriteImage replaces the clipboard with a PNG image
	WriteImage(png []byte) error

	Close()
}

// headlessSource never reports changes and rejects writes. Used where no
// display server is available.
type headlessSource struct{}

func (headlessSource) Name() string { return "headless (no-op)" }

func (headlessSource) Watch(ctx context.Context) <-chan Clip {
	ch := make(chan Clip)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (headlessSource) WriteText(string) error  { return ErrUnsupported }
func (headlessSource) WriteImage([]byte) error { return ErrUnsupported }
func (headlessSource) Close()                  {}

// Headless returns a Source that does nothing
func Headless() Source {
	return headlessSource{}
}
