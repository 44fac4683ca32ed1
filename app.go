package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"clinnote-desktop/internal/asr"
	"clinnote-desktop/internal/audio"
	"clinnote-desktop/internal/crypto"
	"clinnote-desktop/internal/database"
	"clinnote-desktop/internal/llm"
	"clinnote-desktop/internal/models"
	"clinnote-desktop/internal/services/maintenance"
	"clinnote-desktop/internal/services/notes"
	"clinnote-desktop/internal/services/pipeline"
	"clinnote-desktop/internal/services/progress"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"gorm.io/gorm"
)

// App struct - main application state
type App struct {
	ctx                context.Context
	db                 *gorm.DB
	audioManager       *audio.Manager
	notesService       *notes.Service
	progressManager    *progress.Manager
	pipelineService    *pipeline.Service
	maintenanceService *maintenance.Service
	summarizer         *llm.Engine
	cancelBridges      []func()
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	log.Println("Application starting up...")

	// Initialize encryption (FATAL if this fails - engine API keys cannot be stored without it)
	if err := crypto.InitEncryption(); err != nil {
		log.Fatalf("FATAL: Encryption initialization failed: %v\nEngine API keys cannot be stored without encryption.", err)
	}
	log.Println("Encryption initialized successfully")

	// Initialize database
	db, err := database.Init()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	a.db = db
	log.Println("Database initialized successfully")

	// Initialize audio artifact store
	audioDir, err := audio.DefaultDir()
	if err != nil {
		log.Fatalf("Failed to resolve audio directory: %v", err)
	}
	a.audioManager, err = audio.NewManager(audioDir)
	if err != nil {
		log.Fatalf("Failed to initialize audio store: %v", err)
	}
	log.Printf("Audio store initialized at %s", audioDir)

	// Initialize services
	a.notesService = notes.NewService(db, a.audioManager)
	log.Println("Notes service initialized")

	a.progressManager = progress.NewManager(0)
	a.progressManager.Start()
	log.Println("Progress manager initialized")

	transcriber, summarizer := a.buildEngines()
	a.summarizer = summarizer
	a.pipelineService = pipeline.NewService(ctx, a.notesService, a.audioManager, a.progressManager, transcriber, summarizer)
	log.Println("Pipeline service initialized")

	a.maintenanceService = maintenance.NewService(db, a.progressManager, a.audioManager)
	if err := a.maintenanceService.Start(); err != nil {
		log.Printf("WARNING: Failed to start maintenance service: %v", err)
	}

	a.startEventBridges()
	log.Println("Startup complete")
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	log.Println("Application shutting down...")

	for _, cancel := range a.cancelBridges {
		cancel()
	}

	if a.maintenanceService != nil {
		a.maintenanceService.Stop()
	}

	if a.progressManager != nil {
		a.progressManager.Shutdown()
	}

	if err := database.Close(a.db); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}

// buildEngines constructs the ASR and summarization collaborators from the
// active engine profile, falling back to environment variables
func (a *App) buildEngines() (*asr.Client, *llm.Engine) {
	asrURL := os.Getenv("CLINNOTE_ASR_URL")
	asrKey := os.Getenv("CLINNOTE_ASR_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")
	geminiModel := os.Getenv("CLINNOTE_GEMINI_MODEL")

	var profile models.EngineProfile
	err := a.db.Where("active = ?", true).First(&profile).Error
	if err == nil {
		if profile.ASRBaseURL != "" {
			asrURL = profile.ASRBaseURL
		}
		if profile.ASRAPIKeyEnc != "" {
			if key, err := crypto.DecryptAPIKey(profile.ASRAPIKeyEnc); err == nil {
				asrKey = key
			} else {
				log.Printf("WARNING: failed to decrypt ASR API key: %v", err)
			}
		}
		if profile.GeminiKeyEnc != "" {
			if key, err := crypto.DecryptAPIKey(profile.GeminiKeyEnc); err == nil {
				geminiKey = key
			} else {
				log.Printf("WARNING: failed to decrypt summarization API key: %v", err)
			}
		}
		if profile.GeminiModel != "" {
			geminiModel = profile.GeminiModel
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("WARNING: failed to load active engine profile: %v", err)
	}

	if asrURL == "" {
		asrURL = "http://localhost:8090"
	}

	return asr.NewClient(asrURL, asrKey, ""), llm.NewEngine(geminiKey, geminiModel)
}

// startEventBridges forwards the services' subscription channels to the
// frontend as Wails events
func (a *App) startEventBridges() {
	noteCh, cancelNotes := a.notesService.Subscribe()
	progressCh, cancelProgress := a.progressManager.Subscribe()
	a.cancelBridges = append(a.cancelBridges, cancelNotes, cancelProgress)

	go func() {
		for snapshot := range noteCh {
			runtime.EventsEmit(a.ctx, "notes:changed", snapshot)
		}
	}()

	go func() {
		for update := range progressCh {
			runtime.EventsEmit(a.ctx, fmt.Sprintf("progress:%s:%s", update.NoteID, update.Kind), update)
		}
	}()
}

// ====================================================================================
// WAILS-BOUND METHODS - Exposed to Frontend
// ====================================================================================

// Note Management Methods

// ListNotes returns all notes, newest first
func (a *App) ListNotes() ([]models.Note, error) {
	return a.notesService.ListNotes()
}

// GetNote retrieves a single note
func (a *App) GetNote(noteID string) (*models.Note, error) {
	return a.notesService.GetNote(noteID)
}

// GetNoteWaveform returns the waveform samples for a note's audio
func (a *App) GetNoteWaveform(noteID string) ([]float64, error) {
	note, err := a.notesService.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fmt.Errorf("note not found: %s", noteID)
	}
	return note.WaveformSamples(), nil
}

// CreateRecordedNote creates a note from a finished recording
func (a *App) CreateRecordedNote(recordingPath, title string, durationMs int64) (*models.Note, error) {
	var duration *int64
	if durationMs > 0 {
		duration = &durationMs
	}
	return a.notesService.CreateNote(notes.CreateNoteRequest{
		Title:         title,
		Source:        models.SourceRecorded,
		RecordingPath: recordingPath,
		DurationMs:    duration,
	})
}

// CreateImportedNote creates a note from an external audio file
func (a *App) CreateImportedNote(sourcePath, extension, title string, durationMs int64) (*models.Note, error) {
	var duration *int64
	if durationMs > 0 {
		duration = &durationMs
	}
	return a.notesService.CreateNote(notes.CreateNoteRequest{
		Title:      title,
		Source:     models.SourceImported,
		ImportPath: sourcePath,
		Extension:  extension,
		DurationMs: duration,
	})
}

// CreateTextNote creates a text-only note, which skips processing
func (a *App) CreateTextNote(title, text string) (*models.Note, error) {
	return a.notesService.CreateNote(notes.CreateNoteRequest{
		Title:      title,
		Source:     models.SourceText,
		Transcript: text,
	})
}

// DeleteNote removes a note and its audio artifact
func (a *App) DeleteNote(noteID string) error {
	return a.notesService.DeleteNote(noteID)
}

// DeleteAllNotes removes every note and audio artifact
func (a *App) DeleteAllNotes() error {
	return a.notesService.DeleteAllNotes()
}

// Pipeline Methods

// StartTranscription schedules background transcription for a note.
// Returns once the task is scheduled; completion arrives via notes:changed.
func (a *App) StartTranscription(noteID, language string) {
	a.pipelineService.StartTranscription(noteID, language)
}

// StartSummaryGeneration schedules background summary generation for a note
func (a *App) StartSummaryGeneration(noteID string) {
	a.pipelineService.StartSummaryGeneration(noteID)
}

// GenerateSummary generates a summary synchronously and returns it
func (a *App) GenerateSummary(noteID string) (string, error) {
	return a.pipelineService.GenerateSummary(noteID)
}

// GetProgress returns the simulated progress for an in-flight task
func (a *App) GetProgress(noteID string, kind string) (int, error) {
	pct, ok := a.progressManager.CurrentPercent(noteID, progress.TaskKind(kind))
	if !ok {
		return 0, fmt.Errorf("no progress session for note %s (%s)", noteID, kind)
	}
	return pct, nil
}

// GetEngineStatus returns a human-readable summarization engine status
func (a *App) GetEngineStatus() string {
	if a.summarizer == nil {
		return "Engines not initialized"
	}
	return a.summarizer.StatusMessage()
}

// Engine Profile Methods

// EngineProfileRequest carries profile settings from the frontend,
// including plaintext API keys which are encrypted before storage
type EngineProfileRequest struct {
	Name        string `json:"name"`
	ASRBaseURL  string `json:"asr_base_url"`
	ASRAPIKey   string `json:"asr_api_key"`
	GeminiModel string `json:"gemini_model"`
	GeminiKey   string `json:"gemini_key"`
	Language    string `json:"language"`
}

// ListEngineProfiles returns all engine profiles
func (a *App) ListEngineProfiles() ([]models.EngineProfile, error) {
	var profiles []models.EngineProfile
	if err := a.db.Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// CreateEngineProfile creates a new engine profile with encrypted keys
func (a *App) CreateEngineProfile(req EngineProfileRequest) error {
	if !crypto.IsInitialized() {
		return errors.New("encryption system not initialized - cannot save profiles")
	}

	asrKeyEnc, err := crypto.EncryptAPIKey(req.ASRAPIKey)
	if err != nil {
		return err
	}
	geminiKeyEnc, err := crypto.EncryptAPIKey(req.GeminiKey)
	if err != nil {
		return err
	}

	profile := &models.EngineProfile{
		Name:         req.Name,
		ASRBaseURL:   req.ASRBaseURL,
		ASRAPIKeyEnc: asrKeyEnc,
		GeminiModel:  req.GeminiModel,
		GeminiKeyEnc: geminiKeyEnc,
		Language:     req.Language,
	}
	return a.db.Create(profile).Error
}

// DeleteEngineProfile removes an engine profile
func (a *App) DeleteEngineProfile(profileID string) error {
	return a.db.Where("id = ?", profileID).Delete(&models.EngineProfile{}).Error
}

// ActivateEngineProfile marks a profile active and rebuilds the engines
func (a *App) ActivateEngineProfile(profileID string) error {
	err := a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EngineProfile{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.EngineProfile{}).Where("id = ?", profileID).Update("active", true).Error
	})
	if err != nil {
		return err
	}

	transcriber, summarizer := a.buildEngines()
	a.summarizer = summarizer
	a.pipelineService.SetEngines(transcriber, summarizer)
	log.Printf("Activated engine profile %s", profileID)
	return nil
}
