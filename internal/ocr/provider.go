// Package ocr transcribes answer crops through pluggable providers.
package ocr

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

// Image is one answer crop handed to a provider.
type Image struct {
	QuestionID uint
	PNG        []byte
	Width      int
	Height     int
}

// Result is a provider's transcription of one crop.
type Result struct {
	Text       string
	Confidence float64
	Raw        map[string]interface{}
}

// Provider transcribes handwritten or printed answers.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, image Image) (Result, error)
}

// Factory builds a provider or reports why it cannot run here.
type Factory func() (Provider, error)

// Registry maps provider names to factories. Providers are built lazily on first use.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	built     map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory), built: make(map[string]Provider)}
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.built, name)
}

// Names lists registered providers alphabetically.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named provider. It never substitutes another provider.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if provider, ok := r.built[name]; ok {
		return provider, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: ocr provider %q is not registered", pipeline.ErrUnknownProvider, name)
	}

	provider, err := factory()
	if err != nil {
		return nil, err
	}

	r.built[name] = provider
	return provider, nil
}

// Unavailable reports that provider name cannot run, with a hint on how to enable it.
func Unavailable(name, reason, hint string) error {
	return &pipeline.Hinted{
		Err:  fmt.Errorf("%w: ocr provider %q: %s", pipeline.ErrProviderUnavailable, name, reason),
		Hint: hint,
	}
}

// ClampConfidence bounds a provider score to [0, 1]. NaN counts as no confidence.
func ClampConfidence(value float64) float64 {
	switch {
	case math.IsNaN(value), value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
