package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, dataDir string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyDataDir, dataDir)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(newViper(t, dir), "")
	require.NoError(t, err)

	assert.Equal(t, dir, s.DataDir)
	assert.Equal(t, DefaultDaysToKeep, s.DaysToKeep)
	assert.Equal(t, DefaultMaxItems, s.MaxItems)
	assert.Equal(t, DefaultPollInterval, s.PollInterval)
	assert.Equal(t, DefaultAPIAddr, s.APIAddr)
	assert.Equal(t, filepath.Join(dir, "clipboard.db"), s.DBPath())
	assert.Equal(t, filepath.Join(dir, "tmp"), s.ImageDir())
	assert.Equal(t, filepath.Join(dir, "clipit.pid"), s.PIDPath())
}

func TestLoad_SettingsFileInDataDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"),
		[]byte(`{"daysToKeep":3,"maxItems":25,"pollInterval":"50ms"}`), 0644))

	s, err := Load(newViper(t, dir), "")
	require.NoError(t, err)
	assert.Equal(t, 3, s.DaysToKeep)
	assert.Equal(t, 25, s.MaxItems)
	assert.Equal(t, 50*time.Millisecond, s.PollInterval)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipit.toml")
	require.NoError(t, os.WriteFile(path, []byte("maxItems = 5\n"), 0644))

	s, err := Load(newViper(t, t.TempDir()), path)
	require.NoError(t, err)
	assert.Equal(t, 5, s.MaxItems)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(newViper(t, t.TempDir()), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"maxItems":25}`), 0644))
	t.Setenv("CLIPIT_MAX_ITEMS", "9")

	s, err := Load(newViper(t, dir), "")
	require.NoError(t, err)
	assert.Equal(t, 9, s.MaxItems)
}

func TestBindFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("max-items", 0, "")
	fs.String("addr", "", "")
	require.NoError(t, fs.Parse([]string{"--max-items=12", "--addr=127.0.0.1:9999"}))

	v := newViper(t, t.TempDir())
	require.NoError(t, BindFlags(v, fs))

	s, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 12, s.MaxItems)
	assert.Equal(t, "127.0.0.1:9999", s.APIAddr)
	assert.Equal(t, DefaultDaysToKeep, s.DaysToKeep)
}

func TestLoad_NegativeRetentionDisables(t *testing.T) {
	v := newViper(t, t.TempDir())
	v.Set(KeyDaysToKeep, -1)
	v.Set(KeyPollInterval, 0)

	s, err := Load(v, "")
	require.NoError(t, err)
	assert.Zero(t, s.DaysToKeep)
	assert.Equal(t, DefaultPollInterval, s.PollInterval)
}

func TestEnsureDirsAndWriteDefaults(t *testing.T) {
	s := Settings{DataDir: filepath.Join(t.TempDir(), "nested", ".ClipIT")}
	require.NoError(t, EnsureDirs(s))
	assert.DirExists(t, s.ImageDir())

	path, err := WriteDefaults(s)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// second call keeps the file
	require.NoError(t, os.WriteFile(path, []byte(`{"maxItems":1}`), 0644))
	_, err = WriteDefaults(s)
	require.NoError(t, err)

	loaded, err := Load(newViper(t, s.DataDir), "")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.MaxItems)
}

func TestWatch_WithoutFile(t *testing.T) {
	v := newViper(t, t.TempDir())
	_, err := Load(v, "")
	require.NoError(t, err)

	assert.ErrorIs(t, Watch(v, nil, func(Settings) {}), ErrNoSettingsFile)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxItems":1}`), 0644))

	v := newViper(t, dir)
	_, err := Load(v, "")
	require.NoError(t, err)

	got := make(chan Settings, 16)
	require.NoError(t, Watch(v, nil, func(s Settings) {
		select {
		case got <- s:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte(`{"maxItems":2}`), 0644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-got:
			// a write may be observed before the file is complete
			if s.MaxItems == 2 {
				return
			}
		case <-timeout:
			t.Fatal("settings change not observed")
		}
	}
}

// lockedBuffer is written by the watcher goroutine and read by the test
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_LogsUndecodableEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxItems":1}`), 0644))

	v := newViper(t, dir)
	_, err := Load(v, "")
	require.NoError(t, err)

	var out lockedBuffer
	log := slog.New(slog.NewTextHandler(&out, nil))
	require.NoError(t, Watch(v, log, func(Settings) {}))

	require.NoError(t, os.WriteFile(path, []byte(`{"maxItems":"lots"}`), 0644))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ignoring settings change")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ClipIT"), expandHome("~/.ClipIT"))
	assert.Equal(t, "/abs", expandHome("/abs"))
}
