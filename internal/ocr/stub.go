package ocr

import "context"

// StubName is the always-available provider used for wiring and tests.
const StubName = "stub"

// StubText is the transcription the stub returns for every crop.
const StubText = "[stub transcription]"

// Stub returns fixed text with full confidence.
type Stub struct{}

// Name implements Provider.
func (Stub) Name() string { return StubName }

// Transcribe implements Provider.
func (Stub) Transcribe(ctx context.Context, image Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		Text:       StubText,
		Confidence: 1.0,
		Raw: map[string]interface{}{
			"provider": StubName,
			"width":    image.Width,
			"height":   image.Height,
		},
	}, nil
}
