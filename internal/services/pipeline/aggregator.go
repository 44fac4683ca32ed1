package pipeline

import (
	"fmt"
	"strings"

	"clinnote-desktop/internal/llm"
)

// foldSummaryStream consumes a summary generation stream in emission order
// and accumulates tokens into the final document. onSynthesisPhase is
// invoked when the segment-condensing phase finishes, carrying the condensed
// text's length so the caller can re-parametrize progress estimation before
// any synthesis token is folded.
//
// Returns the accumulated text on Completed, or the cause on Error; a
// partial buffer is never returned alongside an error.
func foldSummaryStream(events <-chan llm.SoapEvent, onSynthesisPhase func(totalSummaryLength int)) (string, error) {
	var buf strings.Builder

	for event := range events {
		switch event.Kind {
		case llm.EventToken:
			buf.WriteString(event.Text)
		case llm.EventSummarizerCompleted:
			if onSynthesisPhase != nil {
				onSynthesisPhase(event.TotalSummaryLength)
			}
		case llm.EventCompleted:
			// A stream may complete without any token; an empty summary is
			// the stream's contract, not a defect
			return buf.String(), nil
		case llm.EventError:
			if event.Err != nil {
				return "", event.Err
			}
			return "", fmt.Errorf("summary generation failed")
		}
	}

	return "", fmt.Errorf("summary stream ended without a terminal event")
}
