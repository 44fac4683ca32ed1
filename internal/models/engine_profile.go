package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EngineProfile holds the connection settings for the external ASR and
// summarization services. API keys are stored encrypted.
type EngineProfile struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"unique;not null" json:"name"`
	ASRBaseURL    string    `gorm:"not null;column:asr_base_url" json:"asr_base_url"`
	ASRAPIKeyEnc  string    `gorm:"column:asr_api_key_enc" json:"-"` // Encrypted, never expose in JSON
	GeminiModel   string    `gorm:"column:gemini_model" json:"gemini_model"`
	GeminiKeyEnc  string    `gorm:"column:gemini_key_enc" json:"-"` // Encrypted, never expose in JSON
	Language      string    `gorm:"default:en" json:"language"`
	Active        bool      `gorm:"default:false" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (ep *EngineProfile) BeforeCreate(tx *gorm.DB) error {
	if ep.ID == "" {
		ep.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (EngineProfile) TableName() string {
	return "engine_profiles"
}
