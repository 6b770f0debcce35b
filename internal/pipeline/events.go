package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// StageCompleted is published after a stage commits.
type StageCompleted struct {
	SubmissionID  uint      `json:"submission_id"`
	ExamID        uint      `json:"exam_id"`
	Stage         Stage     `json:"stage"`
	Status        string    `json:"status"`
	ArtifactCount int       `json:"artifact_count"`
	Generation    string    `json:"generation,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher announces committed stages to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event StageCompleted) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, StageCompleted) error { return nil }

// NATSPublisher sends events to `{prefix}.submission.{stage}`.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSPublisher wraps an established NATS connection.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "supermarks"
	}
	return &NATSPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "stage_events").Logger(),
	}
}

// Subject returns the subject a stage's events are published on.
func (p *NATSPublisher) Subject(stage Stage) string {
	return fmt.Sprintf("%s.submission.%s", p.prefix, stage)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, event StageCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode stage event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(event.Stage))
	msg.Data = payload
	if event.CorrelationID != "" {
		msg.Header.Set("X-Correlation-ID", event.CorrelationID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish stage event: %w", err)
	}

	p.logger.Debug().Str("subject", msg.Subject).Uint("submission_id", event.SubmissionID).Msg("stage event published")
	return nil
}
