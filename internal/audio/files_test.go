package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestImportAudio(t *testing.T) {
	t.Run("Should copy the source into the store under the note ID", func(t *testing.T) {
		m := newTestManager(t)
		source := filepath.Join(t.TempDir(), "dictation.mp3")
		require.NoError(t, os.WriteFile(source, []byte("audio-bytes"), 0644))

		fileName, err := m.ImportAudio(source, "note-1", "mp3")
		require.NoError(t, err)
		assert.Equal(t, "note-1.mp3", fileName)
		assert.True(t, m.Exists(fileName))

		content, err := os.ReadFile(m.Resolve(fileName))
		require.NoError(t, err)
		assert.Equal(t, []byte("audio-bytes"), content)

		// The source is untouched
		_, err = os.Stat(source)
		assert.NoError(t, err)
	})

	t.Run("Should default the extension to m4a", func(t *testing.T) {
		m := newTestManager(t)
		source := filepath.Join(t.TempDir(), "dictation")
		require.NoError(t, os.WriteFile(source, []byte("audio"), 0644))

		fileName, err := m.ImportAudio(source, "note-1", "")
		require.NoError(t, err)
		assert.Equal(t, "note-1.m4a", fileName)
	})

	t.Run("Should fail for a missing source", func(t *testing.T) {
		m := newTestManager(t)

		_, err := m.ImportAudio(filepath.Join(t.TempDir(), "missing.m4a"), "note-1", "m4a")
		require.Error(t, err)
	})
}

func TestAdoptRecording(t *testing.T) {
	t.Run("Should move a finished recording into the store", func(t *testing.T) {
		m := newTestManager(t)
		recording := filepath.Join(t.TempDir(), "rec-42.m4a")
		require.NoError(t, os.WriteFile(recording, []byte("recorded"), 0644))

		fileName, err := m.AdoptRecording(recording)
		require.NoError(t, err)
		assert.Equal(t, "rec-42.m4a", fileName)
		assert.True(t, m.Exists(fileName))

		_, statErr := os.Stat(recording)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("Should leave a recording that already lives in the store", func(t *testing.T) {
		m := newTestManager(t)
		inStore := m.Resolve("rec-7.m4a")
		require.NoError(t, os.WriteFile(inStore, []byte("recorded"), 0644))

		fileName, err := m.AdoptRecording(inStore)
		require.NoError(t, err)
		assert.Equal(t, "rec-7.m4a", fileName)
		assert.True(t, m.Exists(fileName))
	})
}

func TestDeleteAudio(t *testing.T) {
	t.Run("Should remove a stored file", func(t *testing.T) {
		m := newTestManager(t)
		require.NoError(t, os.WriteFile(m.Resolve("n1.m4a"), []byte("audio"), 0644))

		require.NoError(t, m.DeleteAudio("n1.m4a"))
		assert.False(t, m.Exists("n1.m4a"))
	})

	t.Run("Should not fail for a missing or empty name", func(t *testing.T) {
		m := newTestManager(t)
		assert.NoError(t, m.DeleteAudio("ghost.m4a"))
		assert.NoError(t, m.DeleteAudio(""))
	})
}

func TestList(t *testing.T) {
	t.Run("Should list all stored file names", func(t *testing.T) {
		m := newTestManager(t)
		require.NoError(t, os.WriteFile(m.Resolve("a.m4a"), []byte("a"), 0644))
		require.NoError(t, os.WriteFile(m.Resolve("b.mp3"), []byte("b"), 0644))

		names, err := m.List()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.m4a", "b.mp3"}, names)
	})
}
