package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisherSubject(t *testing.T) {
	publisher := NewNATSPublisher(nil, "", zerolog.Nop())
	require.Equal(t, "supermarks.submission.crops", publisher.Subject(StageCrops))

	custom := NewNATSPublisher(nil, "exams", zerolog.Nop())
	require.Equal(t, "exams.submission.grade", custom.Subject(StageGrade))
}

func TestNopPublisher(t *testing.T) {
	require.NoError(t, NopPublisher{}.Publish(context.Background(), StageCompleted{Stage: StagePages}))
}
