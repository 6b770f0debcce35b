// Package grading scores transcriptions against question rubrics.
package grading

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

// Input is everything a grader sees for one question.
type Input struct {
	QuestionID uint
	Text       string
	NoAnswer   bool
	Rubric     Rubric
	MaxMarks   int
}

// Outcome is a grader's verdict before clamping.
type Outcome struct {
	Marks     float64
	Breakdown map[string]interface{}
	Feedback  map[string]interface{}
}

// Grader awards marks for a transcription.
type Grader interface {
	Name() string
	Grade(ctx context.Context, input Input) (Outcome, error)
}

// Registry maps grader names to implementations.
type Registry struct {
	mu      sync.RWMutex
	graders map[string]Grader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{graders: make(map[string]Grader)}
}

// DefaultRegistry registers the built-in graders.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(RuleBased{})
	registry.Register(LLM{})
	return registry
}

// Register adds or replaces a grader under its own name.
func (r *Registry) Register(grader Grader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graders[grader.Name()] = grader
}

// Resolve returns the named grader. It never substitutes another grader.
func (r *Registry) Resolve(name string) (Grader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grader, ok := r.graders[name]
	if !ok {
		return nil, fmt.Errorf("%w: grader %q is not registered", pipeline.ErrUnknownProvider, name)
	}
	return grader, nil
}

// Names lists registered graders alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.graders))
	for name := range r.graders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clamp bounds marks to [0, maxMarks] and reports whether it had to.
func Clamp(marks float64, maxMarks int) (float64, bool) {
	switch {
	case math.IsNaN(marks), marks < 0:
		return 0, true
	case marks > float64(maxMarks):
		return float64(maxMarks), true
	default:
		return marks, false
	}
}
