package pipeline

import (
	"errors"
	"testing"

	"clinnote-desktop/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamOf(events ...llm.SoapEvent) <-chan llm.SoapEvent {
	ch := make(chan llm.SoapEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestFoldSummaryStream(t *testing.T) {
	t.Run("Should accumulate tokens in emission order", func(t *testing.T) {
		text, err := foldSummaryStream(streamOf(
			llm.SoapEvent{Kind: llm.EventToken, Text: "A"},
			llm.SoapEvent{Kind: llm.EventToken, Text: "B"},
			llm.SoapEvent{Kind: llm.EventToken, Text: "C"},
			llm.SoapEvent{Kind: llm.EventCompleted},
		), nil)

		require.NoError(t, err)
		assert.Equal(t, "ABC", text)
	})

	t.Run("Should return the cause and discard the partial buffer on error", func(t *testing.T) {
		cause := errors.New("model unavailable")

		text, err := foldSummaryStream(streamOf(
			llm.SoapEvent{Kind: llm.EventToken, Text: "A"},
			llm.SoapEvent{Kind: llm.EventError, Err: cause},
		), nil)

		require.ErrorIs(t, err, cause)
		assert.Equal(t, "", text)
	})

	t.Run("Should yield an empty summary when the stream completes without tokens", func(t *testing.T) {
		text, err := foldSummaryStream(streamOf(
			llm.SoapEvent{Kind: llm.EventCompleted},
		), nil)

		require.NoError(t, err)
		assert.Equal(t, "", text)
	})

	t.Run("Should fire the synthesis hook before folding phase-2 tokens", func(t *testing.T) {
		var order []string

		text, err := foldSummaryStream(streamOf(
			llm.SoapEvent{Kind: llm.EventSummarizerCompleted, TotalSummaryLength: 300},
			llm.SoapEvent{Kind: llm.EventToken, Text: "S: "},
			llm.SoapEvent{Kind: llm.EventToken, Text: "stable"},
			llm.SoapEvent{Kind: llm.EventCompleted},
		), func(totalSummaryLength int) {
			assert.Equal(t, 300, totalSummaryLength)
			order = append(order, "phase2")
		})

		require.NoError(t, err)
		assert.Equal(t, "S: stable", text)
		assert.Equal(t, []string{"phase2"}, order)
	})

	t.Run("Should fail when the stream ends without a terminal event", func(t *testing.T) {
		_, err := foldSummaryStream(streamOf(
			llm.SoapEvent{Kind: llm.EventToken, Text: "A"},
		), nil)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "without a terminal event")
	})
}
