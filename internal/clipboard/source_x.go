//go:build linux || windows

package clipboard

import (
	"context"
	"log/slog"
	"time"

	xclip "golang.design/x/clipboard"
)

type xSource struct{}

// NewSource returns the golang.design/x/clipboard backend, or a headless
// backend when the display is unavailable.
func NewSource() Source {
	if err := xclip.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return Headless()
	}
	return xSource{}
}

func (xSource) Name() string { return "x/clipboard" }

func (xSource) Watch(ctx context.Context) <-chan Clip {
	text := xclip.Watch(ctx, xclip.FmtText)
	image := xclip.Watch(ctx, xclip.FmtImage)

	out := make(chan Clip)
	go func() {
		defer close(out)
		for {
			var clip Clip
			select {
			case <-ctx.Done():
				return
			case data, ok := <-text:
				if !ok {
					return
				}
				clip = Clip{Text: string(data)}
			case data, ok := <-image:
				if !ok {
					return
				}
				clip = Clip{Image: data}
			}
			clip.CapturedAt = time.Now()

			select {
			case out <- clip:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (xSource) WriteText(text string) error {
	xclip.Write(xclip.FmtText, []byte(text))
	return nil
}

func (xSource) WriteImage(png []byte) error {
	xclip.Write(xclip.FmtImage, png)
	return nil
}

func (xSource) Close() {}
