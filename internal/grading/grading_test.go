package grading

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

func rubricFrom(t *testing.T, raw string, maxMarks int) Rubric {
	t.Helper()
	rubric, err := ParseRubric([]byte(raw), maxMarks)
	require.NoError(t, err)
	return rubric
}

func TestRuleBasedAwardsMatchedCriteria(t *testing.T) {
	rubric := rubricFrom(t, `{
		"total_marks": 5,
		"criteria": [
			{"id": "method", "desc": "Uses the quadratic formula", "marks": 2},
			{"id": "c2", "desc": "States discriminant", "marks": 1},
			{"id": 3, "desc": "Factorises expression", "marks": 2}
		],
		"answer_key": "x = 2"
	}`, 5)

	outcome, err := RuleBased{}.Grade(context.Background(), Input{
		Text:     "Using the Quadratic FORMULA we get x = 2",
		Rubric:   rubric,
		MaxMarks: 5,
	})
	require.NoError(t, err)
	require.Equal(t, 2.0, outcome.Marks)

	criteria := outcome.Breakdown["criteria"].([]interface{})
	require.Len(t, criteria, 3)
	first := criteria[0].(map[string]interface{})
	require.Equal(t, "method", first["criterion_id"])
	require.Equal(t, 2.0, first["awarded"])
	require.Equal(t, []string{"formula", "quadratic"}, first["matched_tokens"])
	third := criteria[2].(map[string]interface{})
	require.Equal(t, "3", third["criterion_id"])
	require.Equal(t, 0.0, third["awarded"])

	require.Equal(t, 5.0, outcome.Breakdown["total_marks"])
	require.Equal(t, []interface{}{"Final answer key appears present in response."}, outcome.Feedback["comments"])
	require.Empty(t, outcome.Feedback["error_spans"])
}

func TestRuleBasedCapsAtTotalMarks(t *testing.T) {
	rubric := rubricFrom(t, `{"total_marks": 3, "criteria": [
		{"id": "alpha", "desc": "", "marks": 4},
		{"id": "beta", "desc": "", "marks": 4}
	]}`, 10)

	outcome, err := RuleBased{}.Grade(context.Background(), Input{Text: "alpha beta", Rubric: rubric, MaxMarks: 10})
	require.NoError(t, err)
	require.Equal(t, 3.0, outcome.Marks)
}

func TestRuleBasedDefaultFeedback(t *testing.T) {
	outcome, err := RuleBased{}.Grade(context.Background(), Input{Text: "anything", Rubric: DefaultRubric(4), MaxMarks: 4})
	require.NoError(t, err)
	require.Equal(t, 0.0, outcome.Marks)
	require.Equal(t, []interface{}{"Heuristic rule-based grading applied."}, outcome.Feedback["comments"])
	require.Equal(t, 4.0, outcome.Breakdown["total_marks"])
}

func TestRuleBasedMissingAnswerKey(t *testing.T) {
	rubric := rubricFrom(t, `{"criteria": [], "answer_key": "42"}`, 2)

	outcome, err := RuleBased{}.Grade(context.Background(), Input{Text: "forty", Rubric: rubric, MaxMarks: 2})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"Final answer key not detected; final-mark credit may be missing."}, outcome.Feedback["comments"])
}

func TestShortTokensAreIgnored(t *testing.T) {
	require.Empty(t, matchTokens("q1 use the sum", "use the sum"))
	require.Equal(t, []string{"area"}, matchTokens("Area, area of the circle!", "the area is 4"))
}

func TestTokensAreUnicodeAware(t *testing.T) {
	require.Equal(t, []string{"résumé"}, matchTokens("résumé", "my résumé is attached"))
	require.Equal(t, []string{"größe"}, matchTokens("Größe der Fläche", "die größe ist 4"))
	// "été" is three runes in five bytes
	require.Equal(t, []string{"déjà"}, matchTokens("été déjà", "été déjà vu"))
	require.Equal(t, []string{"snake_case"}, matchTokens("snake_case", "uses snake_case names"))

	rubric := rubricFrom(t, `{"criteria": [{"id": "c1", "desc": "résumé", "marks": 2}]}`, 5)
	outcome, err := RuleBased{}.Grade(context.Background(), Input{Text: "my résumé is attached", Rubric: rubric, MaxMarks: 5})
	require.NoError(t, err)
	require.Equal(t, 2.0, outcome.Marks)
}

func TestLLMFailsFast(t *testing.T) {
	_, err := LLM{}.Grade(context.Background(), Input{Text: "x", Rubric: DefaultRubric(1), MaxMarks: 1})
	require.ErrorIs(t, err, pipeline.ErrNotImplemented)
}

func TestRegistry(t *testing.T) {
	registry := DefaultRegistry()
	require.Equal(t, []string{LLMName, RuleBasedName}, registry.Names())

	grader, err := registry.Resolve(RuleBasedName)
	require.NoError(t, err)
	require.Equal(t, RuleBasedName, grader.Name())

	_, err = registry.Resolve("oracle")
	require.ErrorIs(t, err, pipeline.ErrUnknownProvider)
}

func TestClamp(t *testing.T) {
	marks, clamped := Clamp(7.5, 5)
	require.Equal(t, 5.0, marks)
	require.True(t, clamped)

	marks, clamped = Clamp(-1, 5)
	require.Equal(t, 0.0, marks)
	require.True(t, clamped)

	marks, clamped = Clamp(math.NaN(), 5)
	require.Equal(t, 0.0, marks)
	require.True(t, clamped)

	marks, clamped = Clamp(math.Inf(1), 5)
	require.Equal(t, 5.0, marks)
	require.True(t, clamped)

	marks, clamped = Clamp(2.5, 5)
	require.Equal(t, 2.5, marks)
	require.False(t, clamped)
}

func TestRubricValidation(t *testing.T) {
	require.NoError(t, ValidateRubric([]byte(`{"criteria": [{"id": "a", "desc": "b", "marks": 1}], "metadata": {"source": "import"}}`)))
	require.ErrorIs(t, ValidateRubric([]byte(`{"criteria": [{"id": "a", "marks": -1}]}`)), pipeline.ErrValidation)
	require.ErrorIs(t, ValidateRubric([]byte(`{"criteria": "all of them"}`)), pipeline.ErrValidation)
	require.ErrorIs(t, ValidateRubric([]byte(`[1, 2]`)), pipeline.ErrValidation)
	require.ErrorIs(t, ValidateRubric([]byte(`{`)), pipeline.ErrValidation)

	rubric, err := ParseRubric(nil, 6)
	require.NoError(t, err)
	require.Equal(t, 6.0, *rubric.TotalMarks)
	require.Empty(t, rubric.Criteria)
}
