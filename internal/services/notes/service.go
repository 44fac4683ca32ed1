package notes

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clinnote-desktop/internal/audio"
	"clinnote-desktop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrIllegalTransition is returned when a status write would violate the
// note lifecycle graph. The write is not applied.
var ErrIllegalTransition = errors.New("illegal status transition")

// Service is the persistence layer for notes: CRUD over the database plus
// the audio artifact store, with a change-notification hub for reactive
// readers.
type Service struct {
	db    *gorm.DB
	audio *audio.Manager

	subsMu sync.RWMutex
	subs   map[int]chan []models.Note
	nextID int

	notifyMu sync.Mutex
}

// NewService creates a new notes service
func NewService(db *gorm.DB, audioManager *audio.Manager) *Service {
	return &Service{
		db:    db,
		audio: audioManager,
		subs:  make(map[int]chan []models.Note),
	}
}

// CreateNoteRequest carries the inputs for creating a note
type CreateNoteRequest struct {
	Title         string
	Source        models.NoteSource
	RecordingPath string // RECORDED: finished recording to adopt into the store
	ImportPath    string // IMPORTED: external audio file to copy in
	Extension     string // IMPORTED: audio extension, defaults to m4a
	DurationMs    *int64
	Transcript    string // TEXT: pre-existing text content
	Summary       string
}

// CreateNote creates a note from a recording, an import, or direct text.
// Text-only notes skip processing and are created DONE.
func (s *Service) CreateNote(req CreateNoteRequest) (*models.Note, error) {
	var noteID string
	if req.Source == models.SourceRecorded && req.RecordingPath != "" {
		// The recording's base name is the note ID, keeping the join key stable
		base := filepath.Base(req.RecordingPath)
		noteID = strings.TrimSuffix(base, filepath.Ext(base))
	} else {
		noteID = uuid.New().String()
	}

	now := time.Now()
	meta := generateClinicalMetadata(noteID, now.UnixMilli())

	var audioFileName string
	var waveform []float64

	switch req.Source {
	case models.SourceRecorded:
		if req.RecordingPath != "" {
			fileName, err := s.audio.AdoptRecording(req.RecordingPath)
			if err != nil {
				return nil, fmt.Errorf("failed to store recording: %w", err)
			}
			audioFileName = fileName
			waveform = s.extractWaveform(fileName)
		}
	case models.SourceImported:
		if req.ImportPath != "" {
			fileName, err := s.audio.ImportAudio(req.ImportPath, noteID, req.Extension)
			if err != nil {
				return nil, fmt.Errorf("failed to import audio: %w", err)
			}
			audioFileName = fileName
			waveform = s.extractWaveform(fileName)
		}
	case models.SourceText:
		// No audio for text notes
	default:
		return nil, fmt.Errorf("unknown note source: %s", req.Source)
	}

	status := models.StatusNew
	if req.Source == models.SourceText {
		status = models.StatusDone
	}

	note := &models.Note{
		ID:            noteID,
		Title:         req.Title,
		AudioFileName: audioFileName,
		DurationMs:    req.DurationMs,
		Source:        req.Source,
		Status:        status,
		PatientName:   meta.patientName,
		PatientID:     meta.patientID,
		VisitType:     meta.visitType,
		Clinician:     meta.clinician,
		Department:    meta.department,
		Priority:      meta.priority,
		CreatedAt:     now,
	}
	note.SetTags(meta.tags)
	note.SetWaveform(waveform)

	if req.Transcript != "" {
		t := req.Transcript
		note.Transcript = &t
	}
	if req.Summary != "" {
		sum := req.Summary
		note.Summary = &sum
	}

	if err := s.db.Create(note).Error; err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.notify()
	return note, nil
}

func (s *Service) extractWaveform(fileName string) []float64 {
	samples, err := audio.ExtractWaveform(s.audio.Resolve(fileName), audio.WaveformSampleCount)
	if err != nil {
		log.Printf("Waveform extraction skipped for %s: %v", fileName, err)
		return nil
	}
	return samples
}

// GetNote retrieves a note by ID. Returns (nil, nil) when the note does not exist.
func (s *Service) GetNote(id string) (*models.Note, error) {
	var note models.Note
	if err := s.db.Where("id = ?", id).First(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	return &note, nil
}

// ListNotes returns all notes, newest first
func (s *Service) ListNotes() ([]models.Note, error) {
	var all []models.Note
	if err := s.db.Order("created_at DESC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return all, nil
}

// UpdateStatus applies a lifecycle transition. The error message is written
// only when entering ERROR and cleared on every other transition. Illegal
// transitions are rejected without touching the record.
func (s *Service) UpdateStatus(id string, status models.NoteStatus, errorMessage *string) error {
	if !models.IsValidStatus(status) {
		log.Printf("WARNING: rejected unknown status %q for note %s", status, id)
		return ErrIllegalTransition
	}

	note, err := s.GetNote(id)
	if err != nil {
		return err
	}
	if note == nil {
		return fmt.Errorf("note not found: %s", id)
	}

	// Writing the current status again is not a transition; the graph
	// governs status changes only
	if status != note.Status && !models.CanTransition(note.Status, status) {
		log.Printf("WARNING: rejected status transition %s -> %s for note %s", note.Status, status, id)
		return ErrIllegalTransition
	}

	updates := map[string]interface{}{
		"status":        status,
		"error_message": nil,
	}
	if status == models.StatusError {
		updates["error_message"] = errorMessage
	}

	if err := s.db.Model(&models.Note{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	s.notify()
	return nil
}

// UpdateTranscript writes the transcript and the accompanying status in one
// update. Used on transcription success (TRANSCRIBING -> DONE).
func (s *Service) UpdateTranscript(id, text string, status models.NoteStatus) error {
	return s.updateTextField(id, "transcript", text, status)
}

// UpdateSummary writes the summary and the accompanying status in one
// update. Used on summarization success (SUMMARIZING -> DONE).
func (s *Service) UpdateSummary(id, text string, status models.NoteStatus) error {
	return s.updateTextField(id, "summary", text, status)
}

func (s *Service) updateTextField(id, column, text string, status models.NoteStatus) error {
	note, err := s.GetNote(id)
	if err != nil {
		return err
	}
	if note == nil {
		return fmt.Errorf("note not found: %s", id)
	}

	if status != note.Status && !models.CanTransition(note.Status, status) {
		log.Printf("WARNING: rejected status transition %s -> %s for note %s", note.Status, status, id)
		return ErrIllegalTransition
	}

	updates := map[string]interface{}{
		column:          text,
		"status":        status,
		"error_message": nil,
	}

	if err := s.db.Model(&models.Note{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}

	s.notify()
	return nil
}

// DeleteNote removes a note and its audio artifact
func (s *Service) DeleteNote(id string) error {
	note, err := s.GetNote(id)
	if err != nil {
		return err
	}
	if note == nil {
		return nil
	}

	if note.HasAudio() {
		if err := s.audio.DeleteAudio(note.AudioFileName); err != nil {
			log.Printf("WARNING: failed to delete audio for note %s: %v", id, err)
		}
	}

	if err := s.db.Delete(&models.Note{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	s.notify()
	return nil
}

// DeleteAllNotes removes every note and every stored audio file
func (s *Service) DeleteAllNotes() error {
	if err := s.audio.DeleteAll(); err != nil {
		log.Printf("WARNING: failed to delete audio files: %v", err)
	}

	if err := s.db.Where("1 = 1").Delete(&models.Note{}).Error; err != nil {
		return fmt.Errorf("failed to delete notes: %w", err)
	}

	s.notify()
	return nil
}

// Subscribe registers a reactive reader. Each change delivers a fresh
// snapshot of all notes; slow readers only ever miss intermediate snapshots,
// never the latest. The returned func cancels the subscription.
func (s *Service) Subscribe() (<-chan []models.Note, func()) {
	ch := make(chan []models.Note, 1)

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

// notify pushes the current snapshot to all subscribers. Serialized: with
// concurrent writers, an unserialized drain-then-send could drop the newest
// snapshot in favor of an older one.
func (s *Service) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	all, err := s.ListNotes()
	if err != nil {
		log.Printf("WARNING: failed to snapshot notes for subscribers: %v", err)
		return
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, ch := range s.subs {
		// Replace a pending snapshot rather than blocking the writer
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- all:
		default:
		}
	}
}

type clinicalMetadata struct {
	patientName string
	patientID   string
	visitType   string
	clinician   string
	department  string
	priority    string
	tags        []string
}

var (
	patientNames = []string{
		"Avery Wells", "Jordan Patel", "Riley Chen", "Morgan Diaz",
		"Casey Brown", "Quinn Li", "Taylor Brooks", "Cameron Hayes",
	}
	clinicians = []string{
		"Dr. Ortega", "Dr. Nguyen", "Dr. Shah", "Dr. Brooks", "Dr. Kim", "Dr. Adeyemi",
	}
	departments = []string{
		"Family Medicine", "Cardiology", "Neurology", "Orthopedics", "Emergency", "Internal Medicine",
	}
	visitTypes = []string{"Consult", "Follow-up", "Procedure", "ED", "Telehealth"}
	priorities = []string{"Routine", "Urgent"}
	tagSets    = [][]string{
		{"hypertension", "medication review"},
		{"pain management", "imaging"},
		{"diabetes", "lab follow-up"},
		{"post-op", "wound check"},
		{"respiratory", "asthma"},
		{"cardiac", "EKG"},
	}
)

// generateClinicalMetadata deterministically assigns the demo clinical
// context from the note identity, so a note always shows the same patient
func generateClinicalMetadata(noteID string, createdAtMs int64) clinicalMetadata {
	h := fnv.New64a()
	h.Write([]byte(noteID))
	seed := int64(h.Sum64()) ^ createdAtMs
	if seed < 0 {
		seed = -seed
	}

	pick := func(n int, offset int64) int {
		return int((seed + offset) % int64(n))
	}

	mrnSuffix := seed%900000 + 100000

	return clinicalMetadata{
		patientName: patientNames[pick(len(patientNames), 3)],
		patientID:   fmt.Sprintf("MRN-%d", mrnSuffix),
		visitType:   visitTypes[pick(len(visitTypes), 17)],
		clinician:   clinicians[pick(len(clinicians), 7)],
		department:  departments[pick(len(departments), 11)],
		priority:    priorities[pick(len(priorities), 23)],
		tags:        tagSets[pick(len(tagSets), 31)],
	}
}
