package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"clinnote-desktop/internal/audio"
	"clinnote-desktop/internal/database"
	"clinnote-desktop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *audio.Manager) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	audioManager, err := audio.NewManager(t.TempDir())
	require.NoError(t, err)
	return NewService(db, audioManager), audioManager
}

func TestCreateNote(t *testing.T) {
	t.Run("Should create a text note as DONE with its content", func(t *testing.T) {
		s, _ := newTestService(t)

		note, err := s.CreateNote(CreateNoteRequest{
			Title:      "Typed visit note",
			Source:     models.SourceText,
			Transcript: "Patient reports mild headache for three days.",
		})
		require.NoError(t, err)

		assert.Equal(t, models.StatusDone, note.Status)
		assert.Equal(t, "Patient reports mild headache for three days.", note.TranscriptText())
		assert.False(t, note.HasAudio())
		assert.NotEmpty(t, note.ID)
	})

	t.Run("Should adopt a finished recording and reuse its base name as the ID", func(t *testing.T) {
		s, audioManager := newTestService(t)

		recording := filepath.Join(t.TempDir(), "rec-20260901-103000.m4a")
		require.NoError(t, os.WriteFile(recording, []byte("recorded-bytes"), 0644))
		duration := int64(42000)

		note, err := s.CreateNote(CreateNoteRequest{
			Title:         "Morning consult",
			Source:        models.SourceRecorded,
			RecordingPath: recording,
			DurationMs:    &duration,
		})
		require.NoError(t, err)

		assert.Equal(t, "rec-20260901-103000", note.ID)
		assert.Equal(t, models.StatusNew, note.Status)
		assert.True(t, note.HasAudio())
		assert.True(t, audioManager.Exists(note.AudioFileName))
		// The recording was moved, not copied
		_, statErr := os.Stat(recording)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("Should copy an imported file into the store and keep the original", func(t *testing.T) {
		s, audioManager := newTestService(t)

		source := filepath.Join(t.TempDir(), "external.mp3")
		require.NoError(t, os.WriteFile(source, []byte("imported-bytes"), 0644))

		note, err := s.CreateNote(CreateNoteRequest{
			Title:      "Imported dictation",
			Source:     models.SourceImported,
			ImportPath: source,
			Extension:  "mp3",
		})
		require.NoError(t, err)

		assert.Equal(t, models.StatusNew, note.Status)
		assert.True(t, strings.HasSuffix(note.AudioFileName, ".mp3"))
		assert.True(t, audioManager.Exists(note.AudioFileName))
		_, statErr := os.Stat(source)
		assert.NoError(t, statErr)
	})

	t.Run("Should populate deterministic clinical metadata", func(t *testing.T) {
		s, _ := newTestService(t)

		note, err := s.CreateNote(CreateNoteRequest{Title: "Visit", Source: models.SourceText, Transcript: "text"})
		require.NoError(t, err)

		assert.NotEmpty(t, note.PatientName)
		assert.Regexp(t, `^MRN-\d{6}$`, note.PatientID)
		assert.NotEmpty(t, note.VisitType)
		assert.NotEmpty(t, note.Clinician)
		assert.NotEmpty(t, note.Department)
		assert.NotEmpty(t, note.Priority)
		assert.NotEmpty(t, note.TagList())
	})

	t.Run("Should reject an unknown source", func(t *testing.T) {
		s, _ := newTestService(t)

		_, err := s.CreateNote(CreateNoteRequest{Title: "Bad", Source: "CARRIER_PIGEON"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown note source")
	})
}

func TestGetNote(t *testing.T) {
	t.Run("Should return nil without error for a missing note", func(t *testing.T) {
		s, _ := newTestService(t)

		note, err := s.GetNote("does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, note)
	})
}

func TestListNotes(t *testing.T) {
	t.Run("Should return notes newest first", func(t *testing.T) {
		s, _ := newTestService(t)

		older := &models.Note{ID: "older", Title: "Older", Source: models.SourceText, Status: models.StatusDone, CreatedAt: time.Now().Add(-time.Hour)}
		newer := &models.Note{ID: "newer", Title: "Newer", Source: models.SourceText, Status: models.StatusDone, CreatedAt: time.Now()}
		require.NoError(t, s.db.Create(older).Error)
		require.NoError(t, s.db.Create(newer).Error)

		all, err := s.ListNotes()
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "newer", all[0].ID)
		assert.Equal(t, "older", all[1].ID)
	})
}

func TestUpdateStatus(t *testing.T) {
	seed := func(t *testing.T, s *Service, status models.NoteStatus, errorMessage *string) {
		t.Helper()
		require.NoError(t, s.db.Create(&models.Note{
			ID: "n1", Title: "Visit", Source: models.SourceRecorded, Status: status, ErrorMessage: errorMessage,
		}).Error)
	}

	t.Run("Should apply a legal transition", func(t *testing.T) {
		s, _ := newTestService(t)
		seed(t, s, models.StatusNew, nil)

		require.NoError(t, s.UpdateStatus("n1", models.StatusTranscribing, nil))

		note, err := s.GetNote("n1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusTranscribing, note.Status)
	})

	t.Run("Should reject an illegal transition without touching the record", func(t *testing.T) {
		s, _ := newTestService(t)
		seed(t, s, models.StatusNew, nil)

		err := s.UpdateStatus("n1", models.StatusSummarizing, nil)
		assert.ErrorIs(t, err, ErrIllegalTransition)

		note, loadErr := s.GetNote("n1")
		require.NoError(t, loadErr)
		assert.Equal(t, models.StatusNew, note.Status)
	})

	t.Run("Should allow rewriting the current status", func(t *testing.T) {
		s, _ := newTestService(t)
		seed(t, s, models.StatusDone, nil)

		assert.NoError(t, s.UpdateStatus("n1", models.StatusDone, nil))
	})

	t.Run("Should record the message when entering ERROR", func(t *testing.T) {
		s, _ := newTestService(t)
		seed(t, s, models.StatusTranscribing, nil)
		msg := "Transcription failed: network unreachable"

		require.NoError(t, s.UpdateStatus("n1", models.StatusError, &msg))

		note, err := s.GetNote("n1")
		require.NoError(t, err)
		require.NotNil(t, note.ErrorMessage)
		assert.Equal(t, msg, *note.ErrorMessage)
	})

	t.Run("Should clear the error message on leaving ERROR", func(t *testing.T) {
		s, _ := newTestService(t)
		msg := "Audio file not found"
		seed(t, s, models.StatusError, &msg)

		require.NoError(t, s.UpdateStatus("n1", models.StatusTranscribing, nil))

		note, err := s.GetNote("n1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusTranscribing, note.Status)
		assert.Nil(t, note.ErrorMessage)
	})

	t.Run("Should reject a status outside the lifecycle vocabulary", func(t *testing.T) {
		s, _ := newTestService(t)
		seed(t, s, models.StatusNew, nil)

		err := s.UpdateStatus("n1", "ARCHIVED", nil)
		assert.ErrorIs(t, err, ErrIllegalTransition)

		note, loadErr := s.GetNote("n1")
		require.NoError(t, loadErr)
		assert.Equal(t, models.StatusNew, note.Status)
	})

	t.Run("Should fail for a missing note", func(t *testing.T) {
		s, _ := newTestService(t)

		err := s.UpdateStatus("missing", models.StatusTranscribing, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "note not found")
	})
}

func TestUpdateTranscript(t *testing.T) {
	t.Run("Should write the transcript and status atomically", func(t *testing.T) {
		s, _ := newTestService(t)
		require.NoError(t, s.db.Create(&models.Note{
			ID: "n1", Title: "Visit", Source: models.SourceRecorded, Status: models.StatusTranscribing,
		}).Error)

		require.NoError(t, s.UpdateTranscript("n1", "the transcript", models.StatusDone))

		note, err := s.GetNote("n1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusDone, note.Status)
		assert.Equal(t, "the transcript", note.TranscriptText())
	})

	t.Run("Should enforce the lifecycle on the accompanying status", func(t *testing.T) {
		s, _ := newTestService(t)
		require.NoError(t, s.db.Create(&models.Note{
			ID: "n1", Title: "Visit", Source: models.SourceRecorded, Status: models.StatusNew,
		}).Error)

		err := s.UpdateTranscript("n1", "sneaky", models.StatusDone)
		assert.ErrorIs(t, err, ErrIllegalTransition)

		note, loadErr := s.GetNote("n1")
		require.NoError(t, loadErr)
		assert.Nil(t, note.Transcript)
	})
}

func TestDeleteNote(t *testing.T) {
	t.Run("Should remove the record and its audio artifact", func(t *testing.T) {
		s, audioManager := newTestService(t)
		require.NoError(t, os.WriteFile(audioManager.Resolve("n1.m4a"), []byte("audio"), 0644))
		require.NoError(t, s.db.Create(&models.Note{
			ID: "n1", Title: "Visit", Source: models.SourceRecorded, AudioFileName: "n1.m4a", Status: models.StatusNew,
		}).Error)

		require.NoError(t, s.DeleteNote("n1"))

		note, err := s.GetNote("n1")
		require.NoError(t, err)
		assert.Nil(t, note)
		assert.False(t, audioManager.Exists("n1.m4a"))
	})

	t.Run("Should remove a text-only note without touching the audio store", func(t *testing.T) {
		s, audioManager := newTestService(t)
		require.NoError(t, os.WriteFile(audioManager.Resolve("other.m4a"), []byte("audio"), 0644))
		require.NoError(t, s.db.Create(&models.Note{
			ID: "n1", Title: "Typed", Source: models.SourceText, Status: models.StatusDone,
		}).Error)

		require.NoError(t, s.DeleteNote("n1"))
		assert.True(t, audioManager.Exists("other.m4a"))
	})

	t.Run("Should be a no-op for a missing note", func(t *testing.T) {
		s, _ := newTestService(t)
		assert.NoError(t, s.DeleteNote("missing"))
	})
}

func TestDeleteAllNotes(t *testing.T) {
	t.Run("Should wipe every record and every audio file", func(t *testing.T) {
		s, audioManager := newTestService(t)
		require.NoError(t, os.WriteFile(audioManager.Resolve("n1.m4a"), []byte("audio"), 0644))
		require.NoError(t, s.db.Create(&models.Note{ID: "n1", Title: "A", Source: models.SourceRecorded, AudioFileName: "n1.m4a", Status: models.StatusNew}).Error)
		require.NoError(t, s.db.Create(&models.Note{ID: "n2", Title: "B", Source: models.SourceText, Status: models.StatusDone}).Error)

		require.NoError(t, s.DeleteAllNotes())

		all, err := s.ListNotes()
		require.NoError(t, err)
		assert.Empty(t, all)
		assert.False(t, audioManager.Exists("n1.m4a"))
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("Should deliver a fresh snapshot on every change", func(t *testing.T) {
		s, _ := newTestService(t)
		ch, cancel := s.Subscribe()
		defer cancel()

		_, err := s.CreateNote(CreateNoteRequest{Title: "Visit", Source: models.SourceText, Transcript: "text"})
		require.NoError(t, err)

		select {
		case snapshot := <-ch:
			require.Len(t, snapshot, 1)
			assert.Equal(t, "Visit", snapshot[0].Title)
		case <-time.After(time.Second):
			t.Fatal("no snapshot delivered")
		}
	})

	t.Run("Should keep only the latest snapshot for a slow reader", func(t *testing.T) {
		s, _ := newTestService(t)
		ch, cancel := s.Subscribe()
		defer cancel()

		for i := 0; i < 3; i++ {
			_, err := s.CreateNote(CreateNoteRequest{Title: fmt.Sprintf("Visit %d", i), Source: models.SourceText, Transcript: "text"})
			require.NoError(t, err)
		}

		snapshot := <-ch
		assert.Len(t, snapshot, 3)
	})

	t.Run("Should settle on the complete snapshot after concurrent writes", func(t *testing.T) {
		s, _ := newTestService(t)
		ch, cancel := s.Subscribe()
		defer cancel()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.CreateNote(CreateNoteRequest{Title: fmt.Sprintf("Visit %d", i), Source: models.SourceText, Transcript: "text"})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		// The last delivered snapshot must be the full one, never an
		// intermediate that outraced it
		require.Eventually(t, func() bool {
			select {
			case snapshot := <-ch:
				return len(snapshot) == 8
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestGenerateClinicalMetadata(t *testing.T) {
	t.Run("Should be deterministic for the same note identity", func(t *testing.T) {
		a := generateClinicalMetadata("note-1", 1756700000000)
		b := generateClinicalMetadata("note-1", 1756700000000)
		assert.Equal(t, a, b)
	})

	t.Run("Should keep the MRN in the six-digit range", func(t *testing.T) {
		for _, id := range []string{"a", "b", "c", "long-note-identifier"} {
			meta := generateClinicalMetadata(id, time.Now().UnixMilli())
			assert.Regexp(t, `^MRN-[1-9]\d{5}$`, meta.patientID)
		}
	})
}
