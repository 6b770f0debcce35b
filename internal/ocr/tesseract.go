//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
)

// TesseractName is the registry name of the Tesseract provider.
const TesseractName = "tesseract"

// Tesseract runs the local Tesseract engine through gosseract.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
	logger        zerolog.Logger
}

// NewTesseractFactory returns a factory for the Tesseract provider.
func NewTesseractFactory(languages []string, logger zerolog.Logger) Factory {
	return func() (Provider, error) {
		if gosseract.Version() == "" {
			return nil, Unavailable(TesseractName, "libtesseract not loaded", "install tesseract-ocr and its language data")
		}
		return &Tesseract{
			languages:     languages,
			clientFactory: gosseract.NewClient,
			logger:        logger.With().Str("component", "ocr.tesseract").Logger(),
		}, nil
	}
}

// Name implements Provider.
func (t *Tesseract) Name() string { return TesseractName }

// Transcribe implements Provider.
func (t *Tesseract) Transcribe(ctx context.Context, image Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	client := t.clientFactory()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image.PNG); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}

	confidence, words := wordConfidence(client)

	return Result{
		Text:       strings.TrimSpace(text),
		Confidence: confidence,
		Raw: map[string]interface{}{
			"provider":  TesseractName,
			"languages": t.languages,
			"words":     words,
		},
	}, nil
}

func wordConfidence(client *gosseract.Client) (float64, int) {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0, 0
	}

	var sum float64
	for _, box := range boxes {
		sum += box.Confidence / 100.0
	}
	return ClampConfidence(sum / float64(len(boxes))), len(boxes)
}
