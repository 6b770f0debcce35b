package pipeline

import (
	"fmt"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// Stage names one step of the submission pipeline.
type Stage string

const (
	StagePages      Stage = "pages"
	StageCrops      Stage = "crops"
	StageTranscribe Stage = "transcribe"
	StageGrade      Stage = "grade"

	// StageKeyPages renders an exam's answer key. It sits outside the submission state machine.
	StageKeyPages Stage = "key_pages"
)

type stageRule struct {
	requires  models.SubmissionStatus
	completes models.SubmissionStatus
	previous  Stage
}

var stages = map[Stage]stageRule{
	StagePages:      {requires: models.SubmissionStatusUploaded, completes: models.SubmissionStatusPagesReady},
	StageCrops:      {requires: models.SubmissionStatusPagesReady, completes: models.SubmissionStatusCropsReady, previous: StagePages},
	StageTranscribe: {requires: models.SubmissionStatusCropsReady, completes: models.SubmissionStatusTranscribed, previous: StageCrops},
	StageGrade:      {requires: models.SubmissionStatusTranscribed, completes: models.SubmissionStatusGraded, previous: StageTranscribe},
}

// Stages lists the pipeline in execution order.
func Stages() []Stage {
	return []Stage{StagePages, StageCrops, StageTranscribe, StageGrade}
}

// Requires is the minimum status a submission needs before the stage may run.
func (s Stage) Requires() models.SubmissionStatus {
	return stages[s].requires
}

// Completes is the status a submission holds after the stage commits.
func (s Stage) Completes() models.SubmissionStatus {
	return stages[s].completes
}

// Predecessor is the stage whose output s consumes. Pages has none.
func (s Stage) Predecessor() Stage {
	return stages[s].previous
}

// CheckTransition verifies the submission has reached the stage's prerequisite status.
func CheckTransition(stage Stage, submission models.Submission) error {
	rule, ok := stages[stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}

	if submission.Status.AtLeast(rule.requires) {
		return nil
	}

	return &StageError{
		Err:          ErrPrerequisiteMissing,
		Stage:        stage,
		SubmissionID: submission.ID,
		Detail:       fmt.Sprintf("status is %s, stage %s requires %s", submission.Status, stage, rule.requires),
		Hint:         missingHint(rule.previous),
	}
}

// MissingArtifacts reports that the predecessor stage's output rows are absent.
func MissingArtifacts(stage Stage, submissionID uint, questionID uint, detail string) error {
	return &StageError{
		Err:          ErrPrerequisiteMissing,
		Stage:        stage,
		SubmissionID: submissionID,
		QuestionID:   questionID,
		Detail:       detail,
		Hint:         missingHint(stages[stage].previous),
	}
}

func missingHint(previous Stage) string {
	if previous == "" {
		return ""
	}
	return fmt.Sprintf("run the %s stage first", previous)
}
