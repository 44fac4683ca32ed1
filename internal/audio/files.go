package audio

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Manager owns the on-disk audio artifact store. Every note's audio lives
// under a single directory, keyed by the note ID plus the original extension.
type Manager struct {
	baseDir string
}

// NewManager creates a Manager rooted at baseDir, creating it if needed
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// DefaultDir returns the audio store location under the user config directory
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "clinnote", "audio"), nil
}

// Resolve returns the absolute path for a stored audio file name
func (m *Manager) Resolve(fileName string) string {
	return filepath.Join(m.baseDir, filepath.Base(fileName))
}

// Exists reports whether the named audio file is present on disk
func (m *Manager) Exists(fileName string) bool {
	if fileName == "" {
		return false
	}
	info, err := os.Stat(m.Resolve(fileName))
	return err == nil && !info.IsDir()
}

// ImportAudio copies an external audio file into the store under the note's
// ID. Returns the stored file name.
func (m *Manager) ImportAudio(sourcePath, noteID, extension string) (string, error) {
	ext := strings.TrimPrefix(extension, ".")
	if ext == "" {
		ext = "m4a"
	}
	fileName := noteID + "." + ext

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source audio: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.Resolve(fileName))
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(m.Resolve(fileName))
		return "", fmt.Errorf("failed to copy audio: %w", err)
	}

	return fileName, nil
}

// AdoptRecording moves a finished recording into the store. If the file is
// already inside the store directory it is left in place.
func (m *Manager) AdoptRecording(recordingPath string) (string, error) {
	fileName := filepath.Base(recordingPath)
	target := m.Resolve(fileName)

	if recordingPath == target {
		return fileName, nil
	}

	if err := os.Rename(recordingPath, target); err != nil {
		// Rename fails across filesystems; fall back to copy
		imported, copyErr := m.ImportAudio(recordingPath, strings.TrimSuffix(fileName, filepath.Ext(fileName)), filepath.Ext(fileName))
		if copyErr != nil {
			return "", fmt.Errorf("failed to adopt recording: %w", err)
		}
		os.Remove(recordingPath)
		return imported, nil
	}

	return fileName, nil
}

// DeleteAudio removes a stored audio file. Missing files are not an error.
func (m *Manager) DeleteAudio(fileName string) error {
	if fileName == "" {
		return nil
	}
	err := os.Remove(m.Resolve(fileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete audio file: %w", err)
	}
	return nil
}

// DeleteAll removes every stored audio file
func (m *Manager) DeleteAll() error {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return fmt.Errorf("failed to read audio directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(m.baseDir, entry.Name())); err != nil {
			log.Printf("WARNING: failed to delete audio file %s: %v", entry.Name(), err)
		}
	}
	return nil
}

// List returns the names of all stored audio files
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
