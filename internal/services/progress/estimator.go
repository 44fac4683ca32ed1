package progress

import "time"

// TaskKind distinguishes the two pipeline task types a note can run
type TaskKind string

const (
	KindTranscription TaskKind = "TRANSCRIPTION"
	KindSummary       TaskKind = "SUMMARY"
)

// Phase identifies which estimation curve a summary session is on
type Phase string

const (
	PhaseSingle       Phase = "SINGLE_PHASE"
	PhaseSegmenting   Phase = "PHASE_1_SEGMENTING"
	PhaseSynthesizing Phase = "PHASE_2_SYNTHESIZING"
)

// TranscriptionSpeedFactor estimates transcription time as a fraction of the
// audio duration, calibrated against observed engine throughput.
const TranscriptionSpeedFactor = 0.5

// ExpectedDuration computes the simulated total duration of a generation
// pass: the fixed prompt overhead plus the input text, at the engine's
// per-character rate.
func ExpectedDuration(textLength, promptLength, msPerChar int) time.Duration {
	total := int64(promptLength+textLength) * int64(msPerChar)
	if total < 1 {
		total = 1
	}
	return time.Duration(total) * time.Millisecond
}

// Percent converts elapsed time into a 0-99 percentage. The estimator never
// reports 100 on its own: completion is asserted only by the task's terminal
// event, after the result is persisted.
func Percent(elapsed, expected time.Duration) int {
	if expected <= 0 {
		return 99
	}
	if elapsed <= 0 {
		return 0
	}

	pct := int(elapsed * 100 / expected)
	if pct > 99 {
		return 99
	}
	return pct
}
