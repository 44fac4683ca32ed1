package llm

// SegmentSize is the transcript length (characters) at which summarization
// switches from the single-phase path to segment-then-synthesize.
const SegmentSize = 2000

// Per-character generation rates in milliseconds, calibrated against observed
// engine throughput. Consumed by the progress estimator.
const (
	SummarizerMsPerChar  = 6
	SoapCreatorMsPerChar = 9
)

// SoapSystemPrompt instructs the model to produce the final SOAP note
const SoapSystemPrompt = `You are a clinical documentation assistant. Convert the visit transcript below into a structured SOAP note.

Requirements:
- Four sections with exactly these headings: Subjective, Objective, Assessment, Plan
- Subjective: chief complaint, history of present illness, relevant history reported by the patient
- Objective: examination findings, vitals, and test results mentioned in the transcript
- Assessment: the clinician's working diagnoses, most likely first
- Plan: medications, orders, referrals, patient instructions, and follow-up
- Use concise clinical language; do not invent findings that are not in the transcript
- If a section has no supporting content, write "Not documented"`

// SoapUserPrefix precedes the transcript in the SOAP creation request
const SoapUserPrefix = "\n\nVisit transcript:\n"

// SectionSummarizerPrompt instructs the model to condense one transcript segment
const SectionSummarizerPrompt = `You are a clinical documentation assistant. Condense the following portion of a visit transcript into a dense factual summary.

Requirements:
- Keep every clinically relevant statement: symptoms, findings, measurements, medications, decisions
- Preserve who said what when it matters clinically
- Drop greetings, small talk, and repetition
- Plain prose, no headings`

// SummarizerUserPrefix precedes each segment in the condensing request
const SummarizerUserPrefix = "\n\nTranscript segment:\n"
