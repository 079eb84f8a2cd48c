package prof

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCPU_FailFastWhenActive(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, StartCPU(&buf))
	defer StopCPU()
	assert.True(t, IsCPUActive())

	var buf2 bytes.Buffer
	assert.ErrorIs(t, StartCPU(&buf2), ErrCPUProfileActive)
}

func TestStopCPU_Inactive(t *testing.T) {
	StopCPU()
	assert.False(t, IsCPUActive())
}

func TestWriteTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(ProfileGoroutine, &buf))
	assert.NotZero(t, buf.Len())

	assert.ErrorIs(t, WriteTo(ProfileCPU, &buf), ErrInvalidProfile)
	assert.ErrorIs(t, WriteTo(Profile("bogus"), &buf), ErrInvalidProfile)
}

func TestSession(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	s, err := Start(cpu, heap)
	require.NoError(t, err)
	assert.True(t, IsCPUActive())

	_, err = Start(filepath.Join(dir, "other.prof"), "")
	assert.ErrorIs(t, err, ErrCPUProfileActive)

	require.NoError(t, s.Stop())
	assert.False(t, IsCPUActive())
	require.NoError(t, s.Stop())

	for _, path := range []string{cpu, heap} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), path)
	}
}

func TestSession_Empty(t *testing.T) {
	s, err := Start("", "")
	require.NoError(t, err)
	assert.False(t, IsCPUActive())
	assert.NoError(t, s.Stop())
}

func TestSession_InvalidPath(t *testing.T) {
	_, err := Start(filepath.Join(t.TempDir(), "missing", "cpu.prof"), "")
	assert.Error(t, err)
	assert.False(t, IsCPUActive())
}
