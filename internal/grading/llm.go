package grading

import (
	"context"
	"fmt"

	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

// LLMName is the registry name of the model based grader.
const LLMName = "llm"

// LLM is a placeholder for model based grading. It fails instead of degrading to another grader.
type LLM struct{}

// Name implements Grader.
func (LLM) Name() string { return LLMName }

// Grade implements Grader.
func (LLM) Grade(context.Context, Input) (Outcome, error) {
	return Outcome{}, &pipeline.Hinted{
		Err:  fmt.Errorf("%w: llm grading", pipeline.ErrNotImplemented),
		Hint: "use the rule_based grader",
	}
}
