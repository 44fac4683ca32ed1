package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to a Whisper-compatible speech recognition service.
// The engine is opaque: one blocking call per audio file, no partial progress.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *resty.Client
}

// NewClient creates a new ASR client
func NewClient(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = "whisper-1"
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}

	client.http = resty.New().
		SetTimeout(10 * time.Minute). // Long recordings can take a while to transcribe
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return client
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the transcript text
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if language == "" {
		language = "en"
	}

	req := c.http.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetFormData(map[string]string{
			"model":           c.model,
			"language":        language,
			"response_format": "json",
		})

	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	resp, err := req.Post(c.baseURL + "/v1/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("transcription service returned HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	var result transcriptionResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}

	return result.Text, nil
}
