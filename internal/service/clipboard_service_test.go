package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipit/internal/clipboard"
	"clipit/internal/monitor"
	"clipit/internal/storage"
	"clipit/internal/storage/sqlite"
	"clipit/pkg/types"
)

type fakeSource struct {
	mu     sync.Mutex
	text   []string
	images [][]byte
	err    error

	// clips, when set, is returned by Watch and receives every text write
	clips chan clipboard.Clip
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Watch(ctx context.Context) <-chan clipboard.Clip {
	if f.clips != nil {
		return f.clips
	}
	ch := make(chan clipboard.Clip)
	close(ch)
	return ch
}

func (f *fakeSource) WriteText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.text = append(f.text, text)
	if f.clips != nil {
		f.clips <- clipboard.Clip{Text: text}
	}
	return nil
}

func (f *fakeSource) WriteImage(png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.images = append(f.images, png)
	return nil
}

func (f *fakeSource) Close() {}

type fixture struct {
	engine  *sqlite.Engine
	monitor *monitor.Monitor
	service *ClipboardService
	source  *fakeSource
	dir     string
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := t.TempDir()
	engine, err := sqlite.New(context.Background(), storage.Config{
		DBPath: filepath.Join(dir, "clipboard.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	conn, err := engine.OpenConn()
	require.NoError(t, err)

	images, err := clipboard.NewImageCache(filepath.Join(dir, "tmp"))
	require.NoError(t, err)

	src := &fakeSource{}
	mon := monitor.New(conn, monitor.WithInterval(time.Millisecond))
	base := []Option{
		WithSource(src),
		WithImageCache(images),
		WithClock(func() time.Time { return fixedNow }),
	}
	svc := New(engine, mon, append(base, opts...)...)

	return &fixture{engine: engine, monitor: mon, service: svc, source: src, dir: dir}
}

func TestPushNewCapture_StoresAndFetchesByID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry, stored, err := f.service.PushNewCapture(ctx, types.KindURL, "https://go.dev")
	require.NoError(t, err)
	require.True(t, stored)
	assert.Positive(t, entry.ID)
	assert.Equal(t, fixedNow.Unix(), entry.CapturedAt)

	got, err := f.service.FetchEntryByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestPushNewCapture_SkipsRepeatOfLatest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, stored, err := f.service.PushNewCapture(ctx, types.KindText, "same")
	require.NoError(t, err)
	require.True(t, stored)

	again, stored, err := f.service.PushNewCapture(ctx, types.KindText, "same")
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, first.ID, again.ID)

	_, stored, err = f.service.PushNewCapture(ctx, types.KindText, "other")
	require.NoError(t, err)
	assert.True(t, stored)

	n, err := f.engine.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestPushNewCapture_RejectsUnknownKind(t *testing.T) {
	f := setup(t)

	_, _, err := f.service.PushNewCapture(context.Background(), types.Kind("binary"), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidKind)

	var cerr *ClipboardError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "PushNewCapture", cerr.Op)
}

func TestPushNewImage_WritesCacheFile(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry, stored, err := f.service.PushNewImage(ctx, []byte("\x89PNG fake"))
	require.NoError(t, err)
	require.True(t, stored)
	assert.Equal(t, types.KindImage, entry.Kind)
	assert.FileExists(t, entry.FilePath)
	assert.Equal(t, filepath.Join(f.dir, "tmp"), filepath.Dir(entry.FilePath))
}

func TestPushNewImage_WithoutCache(t *testing.T) {
	f := setup(t, WithImageCache(nil))

	_, _, err := f.service.PushNewImage(context.Background(), []byte("png"))
	assert.ErrorIs(t, err, ErrNoImageCache)
}

func TestFetchEntryByID_Missing(t *testing.T) {
	f := setup(t)

	_, err := f.service.FetchEntryByID(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.service.FetchEntryByID(context.Background(), 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteEntry_RemovesRowAndImage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	img, _, err := f.service.PushNewImage(ctx, []byte("png"))
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteEntry(ctx, img))
	assert.NoFileExists(t, img.FilePath)

	_, err = f.service.FetchEntryByID(ctx, img.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// already gone
	assert.NoError(t, f.service.DeleteEntry(ctx, img))
}

func TestPurge_DeferredUntilNextPoll(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		_, _, err := f.service.PushNewCapture(ctx, types.KindText, p)
		require.NoError(t, err)
	}

	n, err := f.service.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := f.engine.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count, "rows stay until the monitor drains its queue")

	_, err = f.monitor.Poll(ctx)
	require.NoError(t, err)

	count, err = f.engine.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestList_Filters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.service.PushNewCapture(ctx, types.KindText, "x")
	require.NoError(t, err)
	url, _, err := f.service.PushNewCapture(ctx, types.KindURL, "https://a.io")
	require.NoError(t, err)

	rs, err := f.service.List(ctx, storage.Filter{Kind: types.KindURL})
	require.NoError(t, err)
	assert.Equal(t, []int64{url.ID}, rs.IDs())
}

func TestPaste_MovesEntryToTop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entry, _, err := f.service.PushNewCapture(ctx, types.KindMail, "me@example.com")
	require.NoError(t, err)
	_, _, err = f.service.PushNewCapture(ctx, types.KindText, "newer")
	require.NoError(t, err)

	require.NoError(t, f.service.Paste(ctx, entry.ID))
	assert.Equal(t, []string{"me@example.com"}, f.source.text)

	_, err = f.service.FetchEntryByID(ctx, entry.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	latest, err := f.engine.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.KindMail, latest.Kind)
	assert.Equal(t, "me@example.com", latest.Payload)
	assert.Greater(t, latest.ID, entry.ID)
}

func TestPaste_NewestEntryIsKept(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.service.PushNewCapture(ctx, types.KindText, "older")
	require.NoError(t, err)
	newest, _, err := f.service.PushNewCapture(ctx, types.KindText, "newest")
	require.NoError(t, err)

	require.NoError(t, f.service.Paste(ctx, newest.ID))

	rs, err := f.service.List(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	latest, err := f.engine.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newest", latest.Payload)
}

func TestPaste_Image(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	img, _, err := f.service.PushNewImage(ctx, []byte("png bytes"))
	require.NoError(t, err)

	require.NoError(t, f.service.Paste(ctx, img.ID))
	require.Len(t, f.source.images, 1)
	assert.Equal(t, []byte("png bytes"), f.source.images[0])

	latest, err := f.engine.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.KindImage, latest.Kind)
	assert.NotEqual(t, img.ID, latest.ID)
	data, err := os.ReadFile(latest.ImagePath())
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), data)
}

func TestPushNewImage_SkipsRepeatOfLatest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, stored, err := f.service.PushNewImage(ctx, []byte("png bytes"))
	require.NoError(t, err)
	require.True(t, stored)

	again, stored, err := f.service.PushNewImage(ctx, []byte("png bytes"))
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, first.ID, again.ID)

	_, stored, err = f.service.PushNewImage(ctx, []byte("other bytes"))
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestPaste_WatcherEchoDoesNotLoseOrDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// the clipboard reports every write back to the watcher
	f.source.clips = make(chan clipboard.Clip, 8)
	w := clipboard.NewWatcher(f.source, f.service, nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	payloads := func() []string {
		rs, err := f.service.List(ctx, storage.Filter{})
		require.NoError(t, err)
		var out []string
		for _, e := range rs.All() {
			out = append(out, e.Payload)
		}
		return out
	}
	waitFor := func(want ...string) {
		t.Helper()
		require.Eventually(t, func() bool {
			return assert.ObjectsAreEqual(want, payloads())
		}, 5*time.Second, 5*time.Millisecond, "history: %v", payloads())
	}

	f.source.clips <- clipboard.Clip{Text: "first"}
	f.source.clips <- clipboard.Clip{Text: "second"}
	waitFor("first", "second")

	latest, err := f.engine.Latest(ctx)
	require.NoError(t, err)
	require.NoError(t, f.service.Paste(ctx, latest.ID))

	rs, err := f.service.List(ctx, storage.Filter{Payload: "first"})
	require.NoError(t, err)
	first, err := rs.First()
	require.NoError(t, err)
	require.NoError(t, f.service.Paste(ctx, first.ID))

	f.source.clips <- clipboard.Clip{Text: "third"}
	waitFor("second", "first", "third")

	close(f.source.clips)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestPaste_ClipboardFailureKeepsEntry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.source.err = errors.New("pasteboard busy")

	entry, _, err := f.service.PushNewCapture(ctx, types.KindText, "keep me")
	require.NoError(t, err)

	err = f.service.Paste(ctx, entry.ID)
	require.Error(t, err)

	_, err = f.service.FetchEntryByID(ctx, entry.ID)
	assert.NoError(t, err)
}

func TestPaste_WithoutSource(t *testing.T) {
	f := setup(t, WithSource(nil))
	assert.ErrorIs(t, f.service.Paste(context.Background(), 1), ErrNoSource)
}

func TestStart_NotifiesHandlers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	got := make(chan int64, 8)
	f.service.RegisterHandler(HandlerFunc(func(id int64) { got <- id }))
	require.NoError(t, f.service.Start(ctx))
	defer f.service.Stop()

	entry, _, err := f.service.PushNewCapture(ctx, types.KindColor, "#fff")
	require.NoError(t, err)

	select {
	case id := <-got:
		assert.Equal(t, entry.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestStart_Twice(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.service.Start(context.Background()))
	defer f.service.Stop()

	assert.ErrorIs(t, f.service.Start(context.Background()), monitor.ErrAlreadyStarted)
}

func TestApplyRetention(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	old := types.NewEntry(types.KindText, "old", fixedNow.AddDate(0, 0, -10))
	require.NoError(t, f.engine.Save(ctx, &old))
	for _, p := range []string{"a", "b", "c"} {
		_, _, err := f.service.PushNewCapture(ctx, types.KindText, p)
		require.NoError(t, err)
	}

	f.service.SetRetention(Retention{DaysToKeep: 7, MaxItems: 2})
	n, err := f.service.ApplyRetention(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.monitor.Poll(ctx)
	require.NoError(t, err)

	rs, err := f.service.List(ctx, storage.Filter{})
	require.NoError(t, err)
	var payloads []string
	for _, e := range rs.All() {
		payloads = append(payloads, e.Payload)
	}
	assert.Equal(t, []string{"b", "c"}, payloads)
}

func TestApplyRetention_Disabled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.service.PushNewCapture(ctx, types.KindText, "a")
	require.NoError(t, err)

	n, err := f.service.ApplyRetention(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.monitor.QueueLen())
}

func TestRetention_Expired(t *testing.T) {
	rs := storage.NewResultSet(nil, storage.Filter{}, []types.Entry{
		{ID: 1, CapturedAt: fixedNow.AddDate(0, 0, -3).Unix()},
		{ID: 2, CapturedAt: fixedNow.Unix()},
		{ID: 3, CapturedAt: fixedNow.Unix()},
	})

	ids := func(es []types.Entry) []int64 {
		var out []int64
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1}, ids(Retention{DaysToKeep: 2}.Expired(rs, fixedNow)))
	assert.Equal(t, []int64{1}, ids(Retention{MaxItems: 2}.Expired(rs, fixedNow)))
	assert.Empty(t, Retention{}.Expired(rs, fixedNow))
}

func TestClipboardError(t *testing.T) {
	err := &ClipboardError{Op: "Paste", ID: 3, Message: "boom", Err: os.ErrPermission}
	assert.Equal(t, "Paste failed for entry 3: boom: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)

	err = &ClipboardError{Op: "Purge", Message: "nothing"}
	assert.Equal(t, "Purge failed: nothing", err.Error())
}
