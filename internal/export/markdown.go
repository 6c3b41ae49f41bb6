// Package export writes the clipboard history as markdown notes, one file
// per capture day, in a layout Obsidian vaults understand.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"clipit/internal/logging"
	"clipit/pkg/types"
)

const assetsDir = "assets"

// Markdown regenerates day notes under a directory. Every export rewrites
// the notes for the days it covers, so running it twice is harmless.
type Markdown struct {
	dir string
	log *slog.Logger
}

func NewMarkdown(dir string, log *slog.Logger) (*Markdown, error) {
	if dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, assetsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Markdown{dir: dir, log: logging.Component(log, "export")}, nil
}

// NotePath returns the note holding captures of the given day
func (m *Markdown) NotePath(day string) string {
	return filepath.Join(m.dir, day+".md")
}

// Export writes entries and returns the number of notes written. Image
// entries whose file is gone are left out.
func (m *Markdown) Export(entries []types.Entry) (int, error) {
	days := make(map[string][]types.Entry)
	for _, e := range entries {
		day := e.Time().Local().Format("2006-01-02")
		days[day] = append(days[day], e)
	}

	names := make([]string, 0, len(days))
	for day := range days {
		names = append(names, day)
	}
	sort.Strings(names)

	for _, day := range names {
		group := days[day]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n", day)
		for _, e := range group {
			content, err := m.content(e)
			if err != nil {
				m.log.Warn("skipping entry", "id", e.ID, "err", err)
				continue
			}
			fmt.Fprintf(&b, "\n## %s\n---\nid: %d\ntags: [clipboard, %s]\ntype: %s\n---\n\n%s\n",
				e.Time().Local().Format("15:04:05"), e.ID, e.Kind, e.Kind, content)
		}

		if err := os.WriteFile(m.NotePath(day), []byte(b.String()), 0644); err != nil {
			return 0, fmt.Errorf("failed to write note %s: %w", day, err)
		}
		m.log.Debug("note written", "day", day, "entries", len(group))
	}
	return len(names), nil
}

func (m *Markdown) content(e types.Entry) (string, error) {
	switch e.Kind {
	case types.KindImage:
		name := filepath.Base(e.ImagePath())
		if err := copyFile(e.ImagePath(), filepath.Join(m.dir, assetsDir, name)); err != nil {
			return "", err
		}
		return fmt.Sprintf("![[%s/%s]]", assetsDir, name), nil
	case types.KindURL:
		return fmt.Sprintf("<%s>", e.Payload), nil
	case types.KindText:
		return fence(e.Payload), nil
	default:
		return fmt.Sprintf("`%s`", e.Payload), nil
	}
}

// fence wraps text in a code block longer than any backtick run inside it
func fence(text string) string {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	ticks := strings.Repeat("`", max(3, longest+1))
	return ticks + "\n" + strings.TrimRight(text, "\n") + "\n" + ticks
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
