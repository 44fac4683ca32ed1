package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"clinnote-desktop/internal/audio"
	"clinnote-desktop/internal/llm"
	"clinnote-desktop/internal/models"
	"clinnote-desktop/internal/services/notes"
	"clinnote-desktop/internal/services/progress"
)

// Transcriber is the opaque speech recognition collaborator: one blocking
// call per audio file, no partial progress
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Summarizer is the opaque summarization collaborator
type Summarizer interface {
	GenerateSummaryBlocking(ctx context.Context, transcript string) (string, error)
	GenerateSummaryStream(ctx context.Context, transcript string) <-chan llm.SoapEvent
}

type taskKey struct {
	noteID string
	kind   progress.TaskKind
}

// Service supervises the background processing tasks of the note pipeline.
// Tasks run on the service's process-wide context, surviving any UI
// detachment; a failure inside one task never reaches its siblings.
type Service struct {
	ctx      context.Context
	notes    *notes.Service
	audio    *audio.Manager
	progress *progress.Manager

	engineMu   sync.RWMutex
	asr        Transcriber
	summarizer Summarizer

	inflightMu sync.Mutex
	inflight   map[taskKey]struct{}
}

// NewService creates a new pipeline service bound to the application lifetime ctx
func NewService(ctx context.Context, notesSvc *notes.Service, audioManager *audio.Manager, progressManager *progress.Manager, asr Transcriber, summarizer Summarizer) *Service {
	return &Service{
		ctx:        ctx,
		notes:      notesSvc,
		audio:      audioManager,
		progress:   progressManager,
		asr:        asr,
		summarizer: summarizer,
		inflight:   make(map[taskKey]struct{}),
	}
}

// SetEngines swaps the engine collaborators, used when the active engine
// profile changes. In-flight tasks keep the engines they started with.
func (s *Service) SetEngines(asr Transcriber, summarizer Summarizer) {
	s.engineMu.Lock()
	s.asr = asr
	s.summarizer = summarizer
	s.engineMu.Unlock()
}

func (s *Service) engines() (Transcriber, Summarizer) {
	s.engineMu.RLock()
	defer s.engineMu.RUnlock()
	return s.asr, s.summarizer
}

// begin claims the (note, kind) slot. At most one task per slot may run.
func (s *Service) begin(noteID string, kind progress.TaskKind) bool {
	key := taskKey{noteID: noteID, kind: kind}

	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, running := s.inflight[key]; running {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) finish(noteID string, kind progress.TaskKind) {
	s.inflightMu.Lock()
	delete(s.inflight, taskKey{noteID: noteID, kind: kind})
	s.inflightMu.Unlock()
}

// StartTranscription schedules transcription of a note's audio in the
// background and returns immediately. Completion is observed through the
// notes change stream, not the return.
func (s *Service) StartTranscription(noteID, language string) {
	if !s.begin(noteID, progress.KindTranscription) {
		log.Printf("Transcription already running for note %s, ignoring start", noteID)
		return
	}

	go func() {
		defer s.finish(noteID, progress.KindTranscription)
		defer s.recoverTask(noteID, progress.KindTranscription, "transcription")

		s.runTranscription(noteID, language)
	}()
}

func (s *Service) runTranscription(noteID, language string) {
	note, err := s.notes.GetNote(noteID)
	if err != nil {
		log.Printf("Failed to load note %s for transcription: %v", noteID, err)
		return
	}
	if note == nil {
		log.Printf("Note not found for transcription: %s", noteID)
		return
	}
	if !note.HasAudio() {
		log.Printf("No audio file for transcription of note %s", noteID)
		return
	}

	if err := s.notes.UpdateStatus(noteID, models.StatusTranscribing, nil); err != nil {
		log.Printf("Cannot start transcription for note %s: %v", noteID, err)
		return
	}

	var durationMs int64
	if note.DurationMs != nil {
		durationMs = *note.DurationMs
	}
	s.progress.StartTranscription(noteID, durationMs)
	defer s.progress.StopProgress(noteID, progress.KindTranscription)

	if !s.audio.Exists(note.AudioFileName) {
		msg := "Audio file not found"
		log.Printf("ERROR: %s for note %s", msg, noteID)
		s.failNote(noteID, msg)
		return
	}

	asr, _ := s.engines()
	transcript, err := asr.Transcribe(s.ctx, s.audio.Resolve(note.AudioFileName), language)
	if err != nil {
		log.Printf("Transcription failed for note %s: %v", noteID, err)
		s.failNote(noteID, fmt.Sprintf("Transcription failed: %v", err))
		return
	}

	if err := s.notes.UpdateTranscript(noteID, transcript, models.StatusDone); err != nil {
		log.Printf("Failed to persist transcript for note %s: %v", noteID, err)
	}
}

// StartSummaryGeneration schedules summary generation in the background and
// returns immediately. Transcripts below the segment threshold take the
// single-phase path; longer ones are condensed segment by segment before the
// final note is synthesized.
func (s *Service) StartSummaryGeneration(noteID string) {
	if !s.begin(noteID, progress.KindSummary) {
		log.Printf("Summary generation already running for note %s, ignoring start", noteID)
		return
	}

	go func() {
		defer s.finish(noteID, progress.KindSummary)
		defer s.recoverTask(noteID, progress.KindSummary, "summary generation")

		s.runSummaryGeneration(noteID)
	}()
}

func (s *Service) runSummaryGeneration(noteID string) {
	note, err := s.notes.GetNote(noteID)
	if err != nil {
		log.Printf("Failed to load note %s for summary generation: %v", noteID, err)
		return
	}
	if note == nil {
		log.Printf("Note not found for summary generation: %s", noteID)
		return
	}

	// The transcript precondition is checked before any transition, so a
	// never-transcribed note fails outright instead of being left untouched
	transcript := note.TranscriptText()
	if transcript == "" {
		msg := "No transcript available for summary generation"
		log.Printf("%s (note %s)", msg, noteID)
		s.failNote(noteID, msg)
		return
	}

	if err := s.notes.UpdateStatus(noteID, models.StatusSummarizing, nil); err != nil {
		log.Printf("Cannot start summary generation for note %s: %v", noteID, err)
		return
	}
	defer s.progress.StopProgress(noteID, progress.KindSummary)

	soapPromptLength := len(llm.SoapSystemPrompt) + len(llm.SoapUserPrefix)

	if len(transcript) < llm.SegmentSize {
		s.progress.StartSummarySinglePhase(noteID, len(transcript), llm.SoapCreatorMsPerChar, soapPromptLength)
	} else {
		summarizerPromptLength := len(llm.SectionSummarizerPrompt) + len(llm.SummarizerUserPrefix)
		s.progress.StartSummaryPhase1(noteID, len(transcript), llm.SummarizerMsPerChar, summarizerPromptLength)
	}

	_, summarizer := s.engines()
	events := summarizer.GenerateSummaryStream(s.ctx, transcript)
	summary, err := foldSummaryStream(events, func(totalSummaryLength int) {
		s.progress.StartSummaryPhase2(noteID, totalSummaryLength, llm.SoapCreatorMsPerChar, soapPromptLength)
	})
	if err != nil {
		log.Printf("Summary generation failed for note %s: %v", noteID, err)
		s.failNote(noteID, fmt.Sprintf("Summary generation failed: %v", err))
		return
	}

	if err := s.notes.UpdateSummary(noteID, summary, models.StatusDone); err != nil {
		log.Printf("Failed to persist summary for note %s: %v", noteID, err)
	}
}

// GenerateSummary is the blocking variant: it awaits the engine and returns
// the summary (persisting it on success) instead of reporting through the
// fire-and-forget path. No progress session is managed.
func (s *Service) GenerateSummary(noteID string) (string, error) {
	note, err := s.notes.GetNote(noteID)
	if err != nil {
		return "", err
	}
	if note == nil {
		return "", fmt.Errorf("note not found for summary generation: %s", noteID)
	}

	transcript := note.TranscriptText()
	if transcript == "" {
		return "", fmt.Errorf("No transcript available for summary generation")
	}

	if err := s.notes.UpdateStatus(noteID, models.StatusSummarizing, nil); err != nil {
		return "", fmt.Errorf("cannot start summary generation: %w", err)
	}

	_, summarizer := s.engines()
	summary, err := summarizer.GenerateSummaryBlocking(s.ctx, transcript)
	if err != nil {
		s.failNote(noteID, fmt.Sprintf("Summary generation failed: %v", err))
		return "", fmt.Errorf("Summary generation failed: %w", err)
	}

	if err := s.notes.UpdateSummary(noteID, summary, models.StatusDone); err != nil {
		return "", err
	}
	return summary, nil
}

// failNote records a terminal task failure on the note
func (s *Service) failNote(noteID, message string) {
	if err := s.notes.UpdateStatus(noteID, models.StatusError, &message); err != nil {
		log.Printf("Failed to record error for note %s: %v", noteID, err)
	}
}

// recoverTask is the task boundary: an unexpected fault becomes a terminal
// ERROR on the note and never propagates to sibling tasks or the supervisor
func (s *Service) recoverTask(noteID string, kind progress.TaskKind, what string) {
	if r := recover(); r != nil {
		log.Printf("Panic during %s for note %s: %v", what, noteID, r)
		s.failNote(noteID, fmt.Sprintf("Unexpected error during %s: %v", what, r))
		s.progress.StopProgress(noteID, kind)
	}
}
