package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"clipit/internal/clipboard"
	"clipit/internal/service"
	"clipit/internal/storage"
	"clipit/pkg/types"
)

func newPickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Browse the history and paste an entry",
		Long: `Opens a terminal picker over the clipboard history. New captures appear
as they are stored.

  Enter   put the entry back on the clipboard (it moves to the top)
  d       delete the entry
  P       delete everything
  /       filter by content
  q, Esc  quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, log, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}

			src := clipboard.NewSource()
			defer src.Close()

			a, err := openApp(cmd.Context(), s, log, service.WithSource(src))
			if err != nil {
				return err
			}
			defer a.Close()

			screen, err := tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("failed to create screen: %w", err)
			}
			p, err := newPicker(a.svc, screen, log)
			if err != nil {
				return err
			}
			a.svc.RegisterHandler(p)

			if err := a.svc.Start(cmd.Context()); err != nil {
				screen.Fini()
				return err
			}
			return p.Run(cmd.Context())
		},
	}
}

// refreshInterval is how often the picker reloads its history to drop
// entries deleted elsewhere. Notifications only announce new ids.
const refreshInterval = 2 * time.Second

// Picker is an interactive list over the history. It loads the history
// once and then follows new entry notifications, re-reading each entry by
// id through the service.
type Picker struct {
	svc    *service.ClipboardService
	screen tcell.Screen
	log    *slog.Logger

	history      *storage.ResultSet
	refreshEvery time.Duration

	entries    []types.Entry // newest first
	selected   int
	offset     int
	searchMode bool
	searchText string
	status     string

	mu      sync.Mutex
	pending []int64
}

// newEntryEvent wakes the event loop to pick up pending notifications
type newEntryEvent struct {
	tcell.EventTime
}

type refreshEvent struct {
	tcell.EventTime
}

func newPicker(svc *service.ClipboardService, screen tcell.Screen, log *slog.Logger) (*Picker, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}

	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))

	return &Picker{
		svc:          svc,
		screen:       screen,
		log:          log,
		refreshEvery: refreshInterval,
	}, nil
}

// HandleNewEntry implements service.EntryHandler. It runs on the monitor's
// dispatch goroutine, so it only records the id and wakes the event loop.
// A wake-up lost to a full event queue is covered by the next one.
func (p *Picker) HandleNewEntry(id int64) {
	p.mu.Lock()
	p.pending = append(p.pending, id)
	p.mu.Unlock()

	ev := &newEntryEvent{}
	ev.SetEventNow()
	_ = p.screen.PostEvent(ev)
}

func (p *Picker) Run(ctx context.Context) error {
	defer p.screen.Fini()

	if err := p.load(ctx); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		p.screen.PostEvent(tcell.NewEventInterrupt(nil))
	}()

	stop := make(chan struct{})
	defer close(stop)
	go p.tick(stop)

	for {
		p.draw()

		switch ev := p.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			return ctx.Err()
		case *tcell.EventResize:
			p.screen.Sync()
		case *newEntryEvent:
			p.insertPending(ctx)
		case *refreshEvent:
			p.refresh(ctx)
		case *tcell.EventKey:
			if p.searchMode {
				p.handleSearchKey(ev)
				continue
			}
			done, err := p.handleKey(ctx, ev)
			if done || err != nil {
				return err
			}
		}
	}
}

func (p *Picker) handleSearchKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		p.searchMode = false
		p.searchText = ""
	case tcell.KeyEnter:
		p.searchMode = false
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if r := []rune(p.searchText); len(r) > 0 {
			p.searchText = string(r[:len(r)-1])
		}
	case tcell.KeyRune:
		p.searchText += string(ev.Rune())
	}
	p.selected, p.offset = 0, 0
}

func (p *Picker) handleKey(ctx context.Context, ev *tcell.EventKey) (bool, error) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true, nil
	case tcell.KeyUp, tcell.KeyCtrlP:
		p.moveSelection(-1)
	case tcell.KeyDown, tcell.KeyCtrlN:
		p.moveSelection(1)
	case tcell.KeyHome, tcell.KeyCtrlA:
		p.selected = 0
		p.moveSelection(0)
	case tcell.KeyEnd, tcell.KeyCtrlE:
		p.selected = len(p.visible()) - 1
		p.moveSelection(0)
	case tcell.KeyPgUp:
		p.moveSelection(-10)
	case tcell.KeyPgDn:
		p.moveSelection(10)
	case tcell.KeyEnter, tcell.KeyCtrlV:
		if entry, ok := p.current(); ok {
			return true, p.paste(ctx, entry)
		}
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'j':
			p.moveSelection(1)
		case 'k':
			p.moveSelection(-1)
		case 'g':
			p.selected = 0
			p.moveSelection(0)
		case 'G':
			p.selected = len(p.visible()) - 1
			p.moveSelection(0)
		case 'd':
			if entry, ok := p.current(); ok {
				p.delete(ctx, entry)
			}
		case 'P':
			p.purge(ctx)
		case '/':
			p.searchMode = true
			p.searchText = ""
		case 'q':
			return true, nil
		}
	}
	return false, nil
}

func (p *Picker) load(ctx context.Context) error {
	rs, err := p.svc.List(ctx, storage.Filter{})
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	p.history = rs.Sort(storage.FieldID, true)
	p.entries = p.history.All()
	p.selected = 0
	p.offset = 0
	return nil
}

func (p *Picker) tick(stop <-chan struct{}) {
	ticker := time.NewTicker(p.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ev := &refreshEvent{}
			ev.SetEventNow()
			_ = p.screen.PostEvent(ev)
		}
	}
}

// refresh reloads the history, dropping entries removed by the monitor or
// another process. The selection stays on the same entry when it survives.
func (p *Picker) refresh(ctx context.Context) {
	if p.history == nil {
		return
	}
	rs, err := p.history.Reload(ctx)
	if err != nil {
		p.log.Debug("failed to reload history", "err", err)
		return
	}

	selected, hadSelection := p.current()
	p.history = rs
	p.entries = rs.All()

	p.selected = 0
	if hadSelection {
		for i, e := range p.visible() {
			if e.ID == selected.ID {
				p.selected = i
				break
			}
		}
	}
	p.moveSelection(0)
}

func (p *Picker) insertPending(ctx context.Context) {
	p.mu.Lock()
	ids := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, id := range ids {
		p.insert(ctx, id)
	}
}

// insert re-reads a newly reported entry and puts it on top
func (p *Picker) insert(ctx context.Context, id int64) {
	for _, e := range p.entries {
		if e.ID == id {
			return
		}
	}
	entry, err := p.svc.FetchEntryByID(ctx, id)
	if err != nil {
		// removed between notification and read
		p.log.Debug("skipping entry", "id", id, "err", err)
		return
	}
	p.entries = append([]types.Entry{entry}, p.entries...)
	if p.selected > 0 {
		p.selected++
	}
}

func (p *Picker) remove(id int64) {
	for i, e := range p.entries {
		if e.ID == id {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
	p.moveSelection(0)
}

func (p *Picker) paste(ctx context.Context, entry types.Entry) error {
	err := p.svc.Paste(ctx, entry.ID)
	if errors.Is(err, storage.ErrNotFound) {
		p.remove(entry.ID)
		p.status = "entry no longer exists"
		return nil
	}
	return err
}

func (p *Picker) delete(ctx context.Context, entry types.Entry) {
	if err := p.svc.DeleteEntry(ctx, entry); err != nil {
		p.status = err.Error()
		return
	}
	p.remove(entry.ID)
	p.status = fmt.Sprintf("deleted %d", entry.ID)
}

// purge hands every entry to the monitor and clears the list at once
func (p *Picker) purge(ctx context.Context) {
	n, err := p.svc.Purge(ctx)
	if err != nil {
		p.status = err.Error()
		return
	}
	p.entries = nil
	p.selected, p.offset = 0, 0
	p.status = fmt.Sprintf("purged %d %s", n, plural(n, "entry", "entries"))
}

// visible returns the entries matching the search text
func (p *Picker) visible() []types.Entry {
	if p.searchText == "" {
		return p.entries
	}
	needle := strings.ToLower(p.searchText)
	var out []types.Entry
	for _, e := range p.entries {
		if strings.Contains(strings.ToLower(e.Display()), needle) {
			out = append(out, e)
		}
	}
	return out
}

func (p *Picker) current() (types.Entry, bool) {
	visible := p.visible()
	if p.selected < 0 || p.selected >= len(visible) {
		return types.Entry{}, false
	}
	return visible[p.selected], true
}

func (p *Picker) moveSelection(delta int) {
	n := len(p.visible())
	p.selected += delta
	if p.selected >= n {
		p.selected = n - 1
	}
	if p.selected < 0 {
		p.selected = 0
	}

	// Adjust offset for scrolling
	_, height := p.screen.Size()
	visibleHeight := max(height-5, 1)

	if p.selected-p.offset >= visibleHeight {
		p.offset = p.selected - visibleHeight + 1
	} else if p.selected < p.offset {
		p.offset = p.selected
	}
}

func (p *Picker) draw() {
	p.screen.Clear()
	width, height := p.screen.Size()

	headerStyle := tcell.StyleDefault.Reverse(true)
	drawStringCenter(p.screen, 0, " Clipboard History ", headerStyle)

	helpStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	help := "↑/k:Up  ↓/j:Down  Enter:Paste  d:Delete  P:Purge  /:Search  Esc/q:Quit"
	drawStringCenter(p.screen, 1, help, helpStyle)

	if p.searchMode || p.searchText != "" {
		cursor := ""
		if p.searchMode {
			cursor = "█"
		}
		drawString(p.screen, 0, 2, fmt.Sprintf(" Search: %s%s", p.searchText, cursor), tcell.StyleDefault.Reverse(true))
	} else {
		drawString(p.screen, 0, 2, strings.Repeat("─", width), tcell.StyleDefault)
	}

	visible := p.visible()
	visibleHeight := max(height-5, 0)
	endIdx := min(p.offset+visibleHeight, len(visible))

	for i, entry := range visible[min(p.offset, endIdx):endIdx] {
		style := tcell.StyleDefault
		if i+p.offset == p.selected {
			style = style.Reverse(true)
		}

		when := truncate(humanize.Time(entry.Time()), 14)
		line := fmt.Sprintf(" %-5d  %-6s  %s  %s",
			entry.ID,
			truncate(entry.Kind.String(), 6),
			when,
			preview(entry, max(width-36, 10)),
		)
		drawString(p.screen, 0, i+3, line, style)
	}

	if p.status != "" {
		drawString(p.screen, 0, height-1, " "+p.status, tcell.StyleDefault.Foreground(tcell.ColorGreen))
	}
	if len(visible) > 0 {
		status := fmt.Sprintf(" %d/%d ", p.selected+1, len(visible))
		drawString(p.screen, width-len(status), height-1, status, tcell.StyleDefault)
	}

	p.screen.Show()
}

func drawString(s tcell.Screen, x, y int, str string, style tcell.Style) {
	for _, r := range str {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

func drawStringCenter(s tcell.Screen, y int, str string, style tcell.Style) {
	w, _ := s.Size()
	x := max((w-len([]rune(str)))/2, 0)
	drawString(s, x, y, str, style)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s + strings.Repeat(" ", maxLen-len(r))
	}
	return string(r[:maxLen-3]) + "..."
}
