package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

const rubricSchemaText = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "total_marks": {"type": ["number", "null"], "minimum": 0},
    "criteria": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": ["string", "number"]},
          "desc": {"type": "string"},
          "marks": {"type": "number", "minimum": 0}
        },
        "required": ["marks"]
      }
    },
    "answer_key": {"type": "string"},
    "model_solution": {"type": "string"},
    "metadata": {"type": "object"}
  }
}`

var rubricSchema = jsonschema.MustCompileString("rubric.schema.json", rubricSchemaText)

// Criterion is one markable point of a rubric.
type Criterion struct {
	ID    flexString `json:"id"`
	Desc  string     `json:"desc"`
	Marks float64    `json:"marks"`
}

// Rubric describes how a question is marked.
type Rubric struct {
	TotalMarks    *float64               `json:"total_marks,omitempty"`
	Criteria      []Criterion            `json:"criteria"`
	AnswerKey     string                 `json:"answer_key"`
	ModelSolution string                 `json:"model_solution"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// DefaultRubric is stored for questions created without one.
func DefaultRubric(maxMarks int) Rubric {
	total := float64(maxMarks)
	return Rubric{TotalMarks: &total, Criteria: []Criterion{}}
}

// ValidateRubric checks raw JSON against the rubric schema.
func ValidateRubric(raw []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("%w: rubric is not valid json: %v", pipeline.ErrValidation, err)
	}

	if err := rubricSchema.Validate(document); err != nil {
		return fmt.Errorf("%w: rubric: %v", pipeline.ErrValidation, err)
	}
	return nil
}

// ParseRubric validates and decodes a stored rubric. Empty input yields the default rubric.
func ParseRubric(raw []byte, maxMarks int) (Rubric, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return DefaultRubric(maxMarks), nil
	}

	if err := ValidateRubric(raw); err != nil {
		return Rubric{}, err
	}

	var rubric Rubric
	if err := json.Unmarshal(raw, &rubric); err != nil {
		return Rubric{}, fmt.Errorf("%w: rubric: %v", pipeline.ErrValidation, err)
	}
	return rubric, nil
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*f = flexString(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*f = flexString(number.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}
