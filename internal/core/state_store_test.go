package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStateStoreDefaults(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())

	// 알 수 없는 카메라는 기본값
	assert.False(t, store.StreamBlocked("cam1"))

	mode, ok := store.RecordingMode("cam1")
	assert.False(t, ok)
	assert.Empty(t, mode)
}

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path, zap.NewNop())

	require.NoError(t, store.SetStreamBlocked("cam1", true))
	require.NoError(t, store.SetRecordingMode("cam1", "motion"))
	require.NoError(t, store.SetRecordingMode("cam2", "always"))

	assert.True(t, store.StreamBlocked("cam1"))

	mode, ok := store.RecordingMode("cam1")
	assert.True(t, ok)
	assert.Equal(t, "motion", mode)

	// 재시작 시뮬레이션: 같은 파일로 새 스토어 생성
	reloaded := NewStateStore(path, zap.NewNop())

	assert.True(t, reloaded.StreamBlocked("cam1"))
	assert.False(t, reloaded.StreamBlocked("cam2"))

	mode, ok = reloaded.RecordingMode("cam2")
	assert.True(t, ok)
	assert.Equal(t, "always", mode)
}

func TestStateStoreUnblock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path, zap.NewNop())

	require.NoError(t, store.SetStreamBlocked("cam1", true))
	require.NoError(t, store.SetStreamBlocked("cam1", false))

	assert.False(t, store.StreamBlocked("cam1"))

	reloaded := NewStateStore(path, zap.NewNop())
	assert.False(t, reloaded.StreamBlocked("cam1"))
}

func TestStateStorePrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path, zap.NewNop())

	require.NoError(t, store.SetStreamBlocked("cam1", true))
	require.NoError(t, store.SetStreamBlocked("cam2", true))

	require.NoError(t, store.Prune(map[string]bool{"cam1": true}))

	assert.True(t, store.StreamBlocked("cam1"))
	assert.False(t, store.StreamBlocked("cam2"))

	reloaded := NewStateStore(path, zap.NewNop())
	assert.False(t, reloaded.StreamBlocked("cam2"))
}

func TestStateStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	store := NewStateStore(path, zap.NewNop())

	require.NoError(t, store.SetStreamBlocked("cam1", true))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStateStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	store := NewStateStore(path, zap.NewNop())
	assert.False(t, store.StreamBlocked("cam1"))
}
