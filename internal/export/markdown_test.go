package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipit/pkg/types"
)

func at(day, clock string) int64 {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", day+" "+clock, time.Local)
	if err != nil {
		panic(err)
	}
	return t.Unix()
}

func TestExport_OneNotePerDay(t *testing.T) {
	dir := t.TempDir()
	m, err := NewMarkdown(dir, nil)
	require.NoError(t, err)

	n, err := m.Export([]types.Entry{
		{ID: 2, Kind: types.KindURL, Payload: "https://go.dev", CapturedAt: at("2024-05-01", "10:00:00")},
		{ID: 1, Kind: types.KindText, Payload: "hello", CapturedAt: at("2024-05-01", "09:00:00")},
		{ID: 3, Kind: types.KindColor, Payload: "#fff", CapturedAt: at("2024-05-02", "08:30:00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	note, err := os.ReadFile(m.NotePath("2024-05-01"))
	require.NoError(t, err)
	s := string(note)
	assert.Contains(t, s, "# 2024-05-01\n")
	assert.Contains(t, s, "```\nhello\n```")
	assert.Contains(t, s, "<https://go.dev>")
	assert.Less(t, strings.Index(s, "hello"), strings.Index(s, "go.dev"))

	note, err = os.ReadFile(m.NotePath("2024-05-02"))
	require.NoError(t, err)
	assert.Contains(t, string(note), "`#fff`")
	assert.Contains(t, string(note), "type: color")
}

func TestExport_IsRepeatable(t *testing.T) {
	m, err := NewMarkdown(t.TempDir(), nil)
	require.NoError(t, err)

	entries := []types.Entry{{ID: 1, Kind: types.KindMail, Payload: "a@b.io", CapturedAt: at("2024-05-01", "09:00:00")}}
	_, err = m.Export(entries)
	require.NoError(t, err)
	first, err := os.ReadFile(m.NotePath("2024-05-01"))
	require.NoError(t, err)

	_, err = m.Export(entries)
	require.NoError(t, err)
	second, err := os.ReadFile(m.NotePath("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExport_ImagesAreCopied(t *testing.T) {
	src := filepath.Join(t.TempDir(), "abc-1.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0644))

	dir := t.TempDir()
	m, err := NewMarkdown(dir, nil)
	require.NoError(t, err)

	_, err = m.Export([]types.Entry{
		{ID: 1, Kind: types.KindImage, Payload: "abc-1.png", FilePath: src, CapturedAt: at("2024-05-01", "09:00:00")},
		{ID: 2, Kind: types.KindImage, Payload: "gone.png", FilePath: "/no/such/gone.png", CapturedAt: at("2024-05-01", "09:01:00")},
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "assets", "abc-1.png"))
	note, err := os.ReadFile(m.NotePath("2024-05-01"))
	require.NoError(t, err)
	assert.Contains(t, string(note), "![[assets/abc-1.png]]")
	assert.NotContains(t, string(note), "gone.png")
}

func TestFence(t *testing.T) {
	assert.Equal(t, "```\nx\n```", fence("x\n"))
	assert.Equal(t, "````\na ``` b\n````", fence("a ``` b"))
}

func TestNewMarkdown_RequiresDir(t *testing.T) {
	_, err := NewMarkdown("", nil)
	assert.Error(t, err)
}
