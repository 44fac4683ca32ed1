package progress

import (
	"log"
	"sync"
	"time"
)

// Update is one element of the simulated-progress stream for a task
type Update struct {
	NoteID  string   `json:"note_id"`
	Kind    TaskKind `json:"kind"`
	Phase   Phase    `json:"phase"`
	Percent int      `json:"percent"`
	Done    bool     `json:"done"` // Session torn down; the note's status carries the real outcome
}

type sessionKey struct {
	noteID string
	kind   TaskKind
}

// session is the ephemeral progress state of one in-flight task
type session struct {
	phase     Phase
	startedAt time.Time
	expected  time.Duration
}

// Manager owns the progress sessions for all in-flight tasks and publishes
// simulated percentage updates on a timer. It reports nothing as fact: the
// engines are opaque, so the curve is derived from text length and
// calibrated per-character rates.
type Manager struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*session

	subsMu sync.RWMutex
	subs   map[int]chan Update
	nextID int

	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a progress manager ticking at the given interval
func NewManager(interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Manager{
		sessions: make(map[sessionKey]*session),
		subs:     make(map[int]chan Update),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the tick loop. Call Shutdown to stop it.
func (m *Manager) Start() {
	go m.run()
}

func (m *Manager) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.tick(now)
		}
	}
}

func (m *Manager) tick(now time.Time) {
	m.mu.RLock()
	updates := make([]Update, 0, len(m.sessions))
	for key, s := range m.sessions {
		updates = append(updates, Update{
			NoteID:  key.noteID,
			Kind:    key.kind,
			Phase:   s.phase,
			Percent: Percent(now.Sub(s.startedAt), s.expected),
		})
	}
	m.mu.RUnlock()

	for _, u := range updates {
		m.publish(u)
	}
}

// StartTranscription opens a transcription progress session. The curve is
// derived from the audio duration since no transcript text exists yet.
func (m *Manager) StartTranscription(noteID string, audioDurationMs int64) {
	expected := time.Duration(float64(audioDurationMs)*TranscriptionSpeedFactor) * time.Millisecond
	if expected <= 0 {
		expected = 30 * time.Second
	}
	m.open(noteID, KindTranscription, PhaseSingle, expected)
}

// StartSummarySinglePhase opens a summary session for a short transcript
func (m *Manager) StartSummarySinglePhase(noteID string, transcriptLength, msPerChar, promptLength int) {
	m.open(noteID, KindSummary, PhaseSingle, ExpectedDuration(transcriptLength, promptLength, msPerChar))
}

// StartSummaryPhase1 opens a summary session in the segment-condensing phase
func (m *Manager) StartSummaryPhase1(noteID string, transcriptLength, msPerChar, promptLength int) {
	m.open(noteID, KindSummary, PhaseSegmenting, ExpectedDuration(transcriptLength, promptLength, msPerChar))
}

// StartSummaryPhase2 re-parametrizes a two-phase summary session for the
// synthesis phase. The curve is driven by the condensed summary length, not
// the original transcript. A phase-2 start always follows a phase-1 session;
// anything else is a caller bug and is reported.
func (m *Manager) StartSummaryPhase2(noteID string, summaryLength, msPerChar, promptLength int) {
	key := sessionKey{noteID: noteID, kind: KindSummary}

	m.mu.Lock()
	if existing, ok := m.sessions[key]; !ok || existing.phase != PhaseSegmenting {
		log.Printf("ERROR: phase-2 progress start without a phase-1 session for note %s", noteID)
	}
	m.sessions[key] = &session{
		phase:     PhaseSynthesizing,
		startedAt: time.Now(),
		expected:  ExpectedDuration(summaryLength, promptLength, msPerChar),
	}
	m.mu.Unlock()
}

func (m *Manager) open(noteID string, kind TaskKind, phase Phase, expected time.Duration) {
	m.mu.Lock()
	m.sessions[sessionKey{noteID: noteID, kind: kind}] = &session{
		phase:     phase,
		startedAt: time.Now(),
		expected:  expected,
	}
	m.mu.Unlock()
}

// StopProgress tears down the session for a task that reached a terminal
// state. Idempotent.
func (m *Manager) StopProgress(noteID string, kind TaskKind) {
	key := sessionKey{noteID: noteID, kind: kind}

	m.mu.Lock()
	s, existed := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if existed {
		m.publish(Update{NoteID: noteID, Kind: kind, Phase: s.phase, Percent: Percent(time.Since(s.startedAt), s.expected), Done: true})
	}
}

// CurrentPercent returns the simulated percentage for an open session
func (m *Manager) CurrentPercent(noteID string, kind TaskKind) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionKey{noteID: noteID, kind: kind}]
	if !ok {
		return 0, false
	}
	return Percent(time.Since(s.startedAt), s.expected), true
}

// CurrentPhase returns the phase of an open session
func (m *Manager) CurrentPhase(noteID string, kind TaskKind) (Phase, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionKey{noteID: noteID, kind: kind}]
	if !ok {
		return "", false
	}
	return s.phase, true
}

// SweepExpired removes sessions older than ttl, guarding against leaks from
// abandoned tasks. Returns the number of sessions removed.
func (m *Manager) SweepExpired(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var removed []sessionKey
	for key, s := range m.sessions {
		if s.startedAt.Before(cutoff) {
			removed = append(removed, key)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, key := range removed {
		log.Printf("WARNING: progress session for note %s (%s) expired after %v", key.noteID, key.kind, ttl)
		m.publish(Update{NoteID: key.noteID, Kind: key.kind, Done: true})
	}
	return len(removed)
}

// Subscribe registers a progress reader. The returned func cancels the
// subscription.
func (m *Manager) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)

	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.subsMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) publish(u Update) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- u:
		default: // Drop rather than block the tick loop
		}
	}
}

// Shutdown stops the tick loop and tears down every open session
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	keys := make([]sessionKey, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.sessions = make(map[sessionKey]*session)
	m.mu.Unlock()

	for _, key := range keys {
		m.publish(Update{NoteID: key.noteID, Kind: key.kind, Done: true})
	}
}
