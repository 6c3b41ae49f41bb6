package server

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_AcquireReadRemove(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "clipit.pid"))

	pid, err := p.Read()
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, p.Acquire())
	pid, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// re-acquiring from the same process is allowed
	require.NoError(t, p.Acquire())

	require.NoError(t, p.Remove())
	require.NoError(t, p.Remove())
	assert.NoFileExists(t, p.Path())
}

func TestPIDFile_StaleFileIsOverwritten(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "clipit.pid"))
	// pids this large are not handed out
	require.NoError(t, os.WriteFile(p.Path(), []byte(strconv.Itoa(1<<30)), 0644))

	require.NoError(t, p.Acquire())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_InvalidContent(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "clipit.pid"))
	require.NoError(t, os.WriteFile(p.Path(), []byte("not-a-pid"), 0644))

	_, err := p.Read()
	assert.Error(t, err)
	assert.Error(t, p.Acquire())
}

func TestIsRunning(t *testing.T) {
	assert.True(t, IsRunning(os.Getpid()))
	assert.False(t, IsRunning(0))
	assert.False(t, IsRunning(-1))
}
