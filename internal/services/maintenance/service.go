package maintenance

import (
	"log"
	"os"
	"time"

	"clinnote-desktop/internal/audio"
	"clinnote-desktop/internal/models"
	"clinnote-desktop/internal/services/progress"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// defaultSessionTTL bounds how long an abandoned progress session may live.
// Well beyond any realistic engine run, so it only fires on leaks.
const defaultSessionTTL = 30 * time.Minute

// Service runs the periodic housekeeping jobs: expiring leaked progress
// sessions and removing audio files orphaned by deleted notes.
type Service struct {
	db         *gorm.DB
	progress   *progress.Manager
	audio      *audio.Manager
	cron       *cron.Cron
	sessionTTL time.Duration
}

// NewService creates a new maintenance service
func NewService(db *gorm.DB, progressManager *progress.Manager, audioManager *audio.Manager) *Service {
	ttl := defaultSessionTTL
	if val := os.Getenv("CLINNOTE_SESSION_TTL"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	return &Service{
		db:         db,
		progress:   progressManager,
		audio:      audioManager,
		cron:       cron.New(cron.WithSeconds()),
		sessionTTL: ttl,
	}
}

// Start schedules the housekeeping jobs and starts the cron runner
func (s *Service) Start() error {
	log.Println("Starting maintenance service...")

	// Session sweep every minute; orphan sweep nightly
	if _, err := s.cron.AddFunc("0 * * * * *", s.sweepSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 30 3 * * *", s.sweepOrphanedAudio); err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Maintenance service started (session TTL %v)", s.sessionTTL)
	return nil
}

// Stop gracefully stops the cron runner, waiting for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		log.Println("Maintenance service stopped")
	}
}

func (s *Service) sweepSessions() {
	if removed := s.progress.SweepExpired(s.sessionTTL); removed > 0 {
		log.Printf("Maintenance: expired %d leaked progress session(s)", removed)
	}
}

// sweepOrphanedAudio deletes audio files whose note no longer exists
func (s *Service) sweepOrphanedAudio() {
	files, err := s.audio.List()
	if err != nil {
		log.Printf("Maintenance: failed to list audio files: %v", err)
		return
	}

	removed := 0
	for _, name := range files {
		var count int64
		if err := s.db.Model(&models.Note{}).Where("audio_file_name = ?", name).Count(&count).Error; err != nil {
			log.Printf("Maintenance: failed to check audio file %s: %v", name, err)
			continue
		}
		if count > 0 {
			continue
		}

		if err := s.audio.DeleteAudio(name); err != nil {
			log.Printf("Maintenance: failed to delete orphaned audio %s: %v", name, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Printf("Maintenance: removed %d orphaned audio file(s)", removed)
	}
}
