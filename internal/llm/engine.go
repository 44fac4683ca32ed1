package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// EventKind discriminates the events of a summary generation stream
type EventKind int

const (
	// EventToken carries a fragment of generated summary text
	EventToken EventKind = iota
	// EventSummarizerCompleted marks the end of the segment-condensing phase.
	// Emitted only on the two-phase path, before any synthesis token.
	EventSummarizerCompleted
	// EventCompleted marks successful completion of the stream
	EventCompleted
	// EventError marks stream failure; no further events follow
	EventError
)

// SoapEvent is one element of a summary generation stream. The stream is
// finite and ends with exactly one Completed or Error event.
type SoapEvent struct {
	Kind               EventKind
	Text               string // EventToken
	TotalSummaryLength int    // EventSummarizerCompleted: length of the condensed text
	Err                error  // EventError
}

// Engine generates SOAP summaries through the Gemini API.
// Transcripts at or above SegmentSize are condensed segment by segment
// before the final note is synthesized from the condensed text.
type Engine struct {
	apiKey string
	model  string
}

// NewEngine creates a new summarization engine
func NewEngine(apiKey, model string) *Engine {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Engine{apiKey: apiKey, model: model}
}

// Available reports whether the engine is configured
func (e *Engine) Available() bool {
	return e.apiKey != ""
}

// StatusMessage returns a human-readable engine availability message
func (e *Engine) StatusMessage() string {
	if e.Available() {
		return fmt.Sprintf("Summarization engine ready (%s)", e.model)
	}
	return "No summarization API key configured"
}

// GenerateSummaryBlocking produces the complete SOAP note in one call
func (e *Engine) GenerateSummaryBlocking(ctx context.Context, transcript string) (string, error) {
	input := transcript
	if len(transcript) >= SegmentSize {
		condensed, err := e.condenseSegments(ctx, transcript)
		if err != nil {
			return "", err
		}
		input = condensed
	}

	return e.generate(ctx, SoapSystemPrompt+SoapUserPrefix+input)
}

// GenerateSummaryStream produces the SOAP note as an event stream. Tokens
// arrive in generation order; on the two-phase path a SummarizerCompleted
// event precedes the first synthesis token. The channel is closed after the
// terminal Completed or Error event.
func (e *Engine) GenerateSummaryStream(ctx context.Context, transcript string) <-chan SoapEvent {
	events := make(chan SoapEvent)

	go func() {
		defer close(events)

		input := transcript
		if len(transcript) >= SegmentSize {
			condensed, err := e.condenseSegments(ctx, transcript)
			if err != nil {
				events <- SoapEvent{Kind: EventError, Err: err}
				return
			}
			events <- SoapEvent{Kind: EventSummarizerCompleted, TotalSummaryLength: len(condensed)}
			input = condensed
		}

		if err := e.streamGenerate(ctx, SoapSystemPrompt+SoapUserPrefix+input, events); err != nil {
			events <- SoapEvent{Kind: EventError, Err: err}
			return
		}

		events <- SoapEvent{Kind: EventCompleted}
	}()

	return events
}

// condenseSegments runs phase 1: each SegmentSize-sized slice of the
// transcript is condensed independently and the results concatenated
func (e *Engine) condenseSegments(ctx context.Context, transcript string) (string, error) {
	var condensed strings.Builder

	for start := 0; start < len(transcript); start += SegmentSize {
		end := start + SegmentSize
		if end > len(transcript) {
			end = len(transcript)
		}

		summary, err := e.generate(ctx, SectionSummarizerPrompt+SummarizerUserPrefix+transcript[start:end])
		if err != nil {
			return "", fmt.Errorf("segment summarization failed: %w", err)
		}

		if condensed.Len() > 0 {
			condensed.WriteString("\n")
		}
		condensed.WriteString(strings.TrimSpace(summary))
	}

	return condensed.String(), nil
}

// generate performs one blocking content generation call
func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	client, err := e.newClient(ctx)
	if err != nil {
		return "", err
	}

	result, err := client.Models.GenerateContent(ctx, e.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

// streamGenerate performs one streaming generation call, forwarding each
// chunk as a Token event
func (e *Engine) streamGenerate(ctx context.Context, prompt string, events chan<- SoapEvent) error {
	client, err := e.newClient(ctx)
	if err != nil {
		return err
	}

	for resp, err := range client.Models.GenerateContentStream(ctx, e.model, genai.Text(prompt), nil) {
		if err != nil {
			return fmt.Errorf("generate content stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			events <- SoapEvent{Kind: EventToken, Text: text}
		}
	}

	return nil
}

func (e *Engine) newClient(ctx context.Context) (*genai.Client, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("summarization engine not configured: missing API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}
