package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Pix2TextName is the registry name of the Pix2Text provider.
const Pix2TextName = "pix2text"

// Pix2TextDefaultConfidence is reported when the server returns no scores.
const Pix2TextDefaultConfidence = 0.8

const pix2textHint = "pip install 'pix2text[serve]' && p2t serve, then set SUPERMARKS_OCR_PIX2TEXT_URL (e.g. http://localhost:8503)"

// Pix2Text calls a Pix2Text HTTP server started with `p2t serve`.
type Pix2Text struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewPix2TextFactory returns a factory that is unavailable until a server URL is configured.
func NewPix2TextFactory(baseURL string, timeout time.Duration, logger zerolog.Logger) Factory {
	return func() (Provider, error) {
		if strings.TrimSpace(baseURL) == "" {
			return nil, Unavailable(Pix2TextName, "no server url configured", pix2textHint)
		}
		return NewPix2Text(baseURL, timeout, logger), nil
	}
}

// NewPix2Text builds a client for the server at baseURL.
func NewPix2Text(baseURL string, timeout time.Duration, logger zerolog.Logger) *Pix2Text {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)

	return &Pix2Text{
		client: client,
		logger: logger.With().Str("component", "ocr.pix2text").Logger(),
	}
}

// Name implements Provider.
func (p *Pix2Text) Name() string { return Pix2TextName }

type pix2textResponse struct {
	StatusCode int             `json:"status_code"`
	Results    json.RawMessage `json:"results"`
}

type pix2textSegment struct {
	Text  string   `json:"text"`
	Score *float64 `json:"score"`
}

// Transcribe implements Provider.
func (p *Pix2Text) Transcribe(ctx context.Context, image Image) (Result, error) {
	var payload pix2textResponse

	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("image", fmt.Sprintf("question-%d.png", image.QuestionID), bytes.NewReader(image.PNG)).
		SetFormData(map[string]string{
			"file_type":   "text_formula",
			"return_text": "true",
		}).
		SetResult(&payload).
		Post("/pix2text")
	if err != nil {
		return Result{}, fmt.Errorf("pix2text request: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("pix2text request: unexpected status %d", resp.StatusCode())
	}

	text, confidence, err := parsePix2TextResults(payload.Results)
	if err != nil {
		return Result{}, err
	}

	p.logger.Debug().Uint("question_id", image.QuestionID).Int("chars", len(text)).Msg("crop transcribed")

	return Result{
		Text:       text,
		Confidence: confidence,
		Raw: map[string]interface{}{
			"provider":    Pix2TextName,
			"status_code": payload.StatusCode,
			"results":     json.RawMessage(payload.Results),
		},
	}, nil
}

// parsePix2TextResults accepts either a plain string or a list of scored segments.
func parsePix2TextResults(raw json.RawMessage) (string, float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", Pix2TextDefaultConfidence, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text), Pix2TextDefaultConfidence, nil
	}

	var segments []pix2textSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return "", 0, fmt.Errorf("parse pix2text results: %w", err)
	}

	lines := make([]string, 0, len(segments))
	var sum float64
	scored := 0
	for _, segment := range segments {
		if trimmed := strings.TrimSpace(segment.Text); trimmed != "" {
			lines = append(lines, trimmed)
		}
		if segment.Score != nil {
			sum += *segment.Score
			scored++
		}
	}

	confidence := Pix2TextDefaultConfidence
	if scored > 0 {
		confidence = ClampConfidence(sum / float64(scored))
	}
	return strings.Join(lines, "\n"), confidence, nil
}
