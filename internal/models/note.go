package models

import (
	"encoding/json"
	"time"
)

// NoteSource identifies how a note entered the system
type NoteSource string

const (
	SourceRecorded NoteSource = "RECORDED"
	SourceImported NoteSource = "IMPORTED"
	SourceText     NoteSource = "TEXT"
)

// NoteStatus is the note's position in the processing lifecycle
type NoteStatus string

const (
	StatusNew          NoteStatus = "NEW"
	StatusTranscribing NoteStatus = "TRANSCRIBING"
	StatusSummarizing  NoteStatus = "SUMMARIZING"
	StatusDone         NoteStatus = "DONE"
	StatusError        NoteStatus = "ERROR"
)

// legalTransitions encodes the lifecycle graph. Retries re-enter
// TRANSCRIBING/SUMMARIZING from ERROR. A task precondition failure (missing
// transcript) is recorded before the task transitions, so ERROR is also
// reachable from NEW and DONE.
var legalTransitions = map[NoteStatus][]NoteStatus{
	StatusNew:          {StatusTranscribing, StatusError},
	StatusTranscribing: {StatusDone, StatusError},
	StatusDone:         {StatusSummarizing, StatusError},
	StatusSummarizing:  {StatusDone, StatusError},
	StatusError:        {StatusTranscribing, StatusSummarizing},
}

// CanTransition reports whether moving a note from one status to another
// is legal. Writes that would apply an illegal transition must be rejected.
func CanTransition(from, to NoteStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is one of the five lifecycle statuses
func IsValidStatus(s NoteStatus) bool {
	switch s {
	case StatusNew, StatusTranscribing, StatusSummarizing, StatusDone, StatusError:
		return true
	}
	return false
}

// Note represents a clinical note and its processing state
type Note struct {
	ID            string     `gorm:"primaryKey" json:"id"` // For recorded notes this is also the audio file's base name
	Title         string     `gorm:"not null" json:"title"`
	AudioFileName string     `gorm:"column:audio_file_name" json:"audio_file_name"` // Empty for text-only notes
	DurationMs    *int64     `gorm:"column:duration_ms" json:"duration_ms"`
	Source        NoteSource `gorm:"not null;type:text" json:"source"`
	Status        NoteStatus `gorm:"not null;type:text;default:NEW" json:"status"`
	Transcript    *string    `gorm:"type:text" json:"transcript"`
	Summary       *string    `gorm:"type:text" json:"summary"`
	ErrorMessage  *string    `gorm:"column:error_message" json:"error_message"`
	Waveform      string     `gorm:"type:text" json:"-"` // JSON array of float64 samples

	// Clinical context, assigned once at creation and never touched by the pipeline
	PatientName string `gorm:"column:patient_name" json:"patient_name"`
	PatientID   string `gorm:"column:patient_id" json:"patient_id"`
	VisitType   string `gorm:"column:visit_type" json:"visit_type"`
	Clinician   string `json:"clinician"`
	Department  string `json:"department"`
	Priority    string `json:"priority"`
	Tags        string `gorm:"type:text" json:"-"` // JSON array of strings

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Note) TableName() string {
	return "notes"
}

// HasAudio reports whether the note references an audio artifact
func (n *Note) HasAudio() bool {
	return n.AudioFileName != ""
}

// TranscriptText returns the transcript or "" when none has been written
func (n *Note) TranscriptText() string {
	if n.Transcript == nil {
		return ""
	}
	return *n.Transcript
}

// SetWaveform stores waveform samples as JSON text
func (n *Note) SetWaveform(samples []float64) {
	if len(samples) == 0 {
		n.Waveform = ""
		return
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return
	}
	n.Waveform = string(data)
}

// WaveformSamples decodes the stored waveform, nil when absent
func (n *Note) WaveformSamples() []float64 {
	if n.Waveform == "" {
		return nil
	}
	var samples []float64
	if err := json.Unmarshal([]byte(n.Waveform), &samples); err != nil {
		return nil
	}
	return samples
}

// SetTags stores the tag set as JSON text
func (n *Note) SetTags(tags []string) {
	if len(tags) == 0 {
		n.Tags = ""
		return
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return
	}
	n.Tags = string(data)
}

// TagList decodes the stored tag set, nil when absent
func (n *Note) TagList() []string {
	if n.Tags == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(n.Tags), &tags); err != nil {
		return nil
	}
	return tags
}
