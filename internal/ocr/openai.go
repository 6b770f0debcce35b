package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

// OpenAIName is the registry name of the vision model provider.
const OpenAIName = "openai"

// Crops wider than this are downscaled before upload.
const openAIMaxWidth = 1280

var (
	visionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "supermarks",
		Subsystem: "ocr",
		Name:      "vision_duration_seconds",
		Help:      "Duration of vision model transcription requests",
	}, []string{"model"})

	visionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supermarks",
		Subsystem: "ocr",
		Name:      "vision_failures_total",
		Help:      "Number of vision model transcription failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the vision provider.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Logger    zerolog.Logger
}

// OpenAI transcribes crops with a vision capable chat model in JSON mode.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIFactory returns a factory that is unavailable until an API key is configured.
func NewOpenAIFactory(cfg OpenAIConfig) Factory {
	return func() (Provider, error) {
		if cfg.APIKey == "" {
			return nil, Unavailable(OpenAIName, "no api key configured", "set SUPERMARKS_OPENAI_API_KEY")
		}
		return NewOpenAI(cfg), nil
	}
}

// NewOpenAI builds the provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/supermarks-api/internal/ocr/openai"),
		logger: logger.With().Str("component", "ocr.openai").Logger(),
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return OpenAIName }

// Transcribe implements Provider.
func (o *OpenAI) Transcribe(parent context.Context, image Image) (Result, error) {
	ctx, span := o.tracer.Start(parent, "ocr.openai.transcribe", trace.WithAttributes(
		attribute.String("model", o.cfg.Model),
		attribute.Int("question_id", int(image.QuestionID)),
	))
	defer span.End()

	payload, err := downscale(image.PNG, openAIMaxWidth)
	if err != nil {
		return Result{}, o.fail(span, err)
	}

	request := openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: transcriberSystemPrompt(),
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Transcribe this exam answer. Return JSON."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload),
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, request)
	visionDuration.WithLabelValues(o.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, o.fail(span, fmt.Errorf("openai transcribe: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Result{}, o.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	result, err := parseTranscription(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return Result{}, o.fail(span, err)
	}

	result.Raw = map[string]interface{}{
		"provider": OpenAIName,
		"model":    resp.Model,
		"usage":    resp.Usage,
	}
	return result, nil
}

func (o *OpenAI) fail(span trace.Span, err error) error {
	visionFailures.WithLabelValues(o.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func transcriberSystemPrompt() string {
	return "You transcribe handwritten and printed exam answers. Copy the text exactly as written, keep line breaks, " +
		"write formulas in LaTeX. Respond with a JSON object {\"text\": string, \"confidence\": number between 0 and 1}. " +
		"Use an empty text when the image holds no answer."
}

func parseTranscription(content string) (Result, error) {
	var data struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return Result{}, fmt.Errorf("parse transcription json: %w", err)
	}

	confidence := 0.5
	if data.Confidence != nil {
		confidence = ClampConfidence(*data.Confidence)
	}

	return Result{Text: strings.TrimSpace(data.Text), Confidence: confidence}, nil
}

func downscale(data []byte, maxWidth int) ([]byte, error) {
	img, err := pipeline.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() <= maxWidth {
		return data, nil
	}
	return pipeline.EncodePNG(imaging.Resize(img, maxWidth, 0, imaging.Lanczos))
}
