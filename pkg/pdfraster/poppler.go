package pdfraster

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Poppler runs the local pdftoppm binary.
type Poppler struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPoppler constructs a converter around pdftoppm found on PATH.
func NewPoppler(timeout time.Duration, logger zerolog.Logger) *Poppler {
	return &Poppler{
		binary:  "pdftoppm",
		timeout: timeout,
		logger:  logger.With().Str("component", "pdfraster.poppler").Logger(),
	}
}

// Name implements Converter.
func (p *Poppler) Name() string { return "poppler" }

// Available implements Converter.
func (p *Poppler) Available(context.Context) error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return &UnavailableError{
			Converter: p.Name(),
			Reason:    fmt.Sprintf("%s not found on PATH", p.binary),
			Hint:      "install poppler-utils (apt-get install poppler-utils / brew install poppler)",
		}
	}
	return nil
}

// Convert implements Converter.
func (p *Poppler) Convert(ctx context.Context, pdf []byte, dpi int) ([][]byte, error) {
	if err := p.Available(ctx); err != nil {
		return nil, err
	}

	dir, cleanup, err := prepareWorkspace(pdf)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, pdftoppmArgs(dir, dpi)...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages, err := collectPages(dir)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().Int("pages", len(pages)).Int("dpi", dpi).Dur("duration", time.Since(start)).Msg("pdf rasterized")
	return pages, nil
}
