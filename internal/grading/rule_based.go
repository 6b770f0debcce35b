package grading

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RuleBasedName is the registry name of the keyword grader.
const RuleBasedName = "rule_based"

// RuleBased awards a criterion's marks when any keyword longer than three characters from its id
// or description appears in the transcription.
type RuleBased struct{}

// Name implements Grader.
func (RuleBased) Name() string { return RuleBasedName }

// Grade implements Grader.
func (RuleBased) Grade(ctx context.Context, input Input) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	text := strings.ToLower(input.Text)
	answerKey := strings.ToLower(strings.TrimSpace(input.Rubric.AnswerKey))

	earned := 0.0
	items := make([]interface{}, 0, len(input.Rubric.Criteria))
	comments := make([]interface{}, 0, 1)

	for _, criterion := range input.Rubric.Criteria {
		matched := matchTokens(criterion.ID.String()+" "+criterion.Desc, text)

		awarded := 0.0
		if len(matched) > 0 {
			awarded = criterion.Marks
		}
		earned += awarded

		items = append(items, map[string]interface{}{
			"criterion_id":   criterion.ID.String(),
			"description":    criterion.Desc,
			"max_marks":      criterion.Marks,
			"awarded":        awarded,
			"matched_tokens": matched,
		})
	}

	if answerKey != "" {
		if strings.Contains(text, answerKey) {
			comments = append(comments, "Final answer key appears present in response.")
		} else {
			comments = append(comments, "Final answer key not detected; final-mark credit may be missing.")
		}
	}
	if len(comments) == 0 {
		comments = append(comments, "Heuristic rule-based grading applied.")
	}

	totalMarks := float64(input.MaxMarks)
	if input.Rubric.TotalMarks != nil {
		totalMarks = *input.Rubric.TotalMarks
	}
	earned = math.Min(earned, math.Min(float64(input.MaxMarks), totalMarks))

	return Outcome{
		Marks: earned,
		Breakdown: map[string]interface{}{
			"criteria":    items,
			"total_marks": totalMarks,
		},
		Feedback: map[string]interface{}{
			"comments":    comments,
			"error_spans": []interface{}{},
		},
	}, nil
}

// matchTokens returns the distinct tokens of source longer than three characters found in text,
// sorted for stable output.
func matchTokens(source, text string) []string {
	seen := make(map[string]struct{})
	matched := make([]string, 0)
	for _, token := range strings.FieldsFunc(strings.ToLower(source), nonWord) {
		if utf8.RuneCountInString(token) <= 3 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		if strings.Contains(text, token) {
			matched = append(matched, token)
		}
	}
	sort.Strings(matched)
	return matched
}

// nonWord separates tokens on anything that is not a letter, digit or underscore in any script.
func nonWord(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
