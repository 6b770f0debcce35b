// Package pdfraster turns PDF documents into per-page PNG images.
package pdfraster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrUnavailable indicates the rasterizer cannot run in this environment.
var ErrUnavailable = errors.New("pdf rasterizer unavailable")

// UnavailableError explains how to make the rasterizer available.
type UnavailableError struct {
	Converter string
	Reason    string
	Hint      string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s converter: %s", e.Converter, e.Reason)
}

func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

// Converter rasterizes PDF bytes into PNG pages in document order.
type Converter interface {
	Name() string
	Available(ctx context.Context) error
	Convert(ctx context.Context, pdf []byte, dpi int) ([][]byte, error)
}

// Disabled is the converter used when PDF support is switched off.
type Disabled struct{}

// Name implements Converter.
func (Disabled) Name() string { return "none" }

// Available implements Converter.
func (Disabled) Available(context.Context) error {
	return &UnavailableError{
		Converter: "none",
		Reason:    "pdf conversion is disabled",
		Hint:      "set SUPERMARKS_PDF_CONVERTER=poppler and install poppler-utils, or use docker",
	}
}

// Convert implements Converter.
func (d Disabled) Convert(ctx context.Context, _ []byte, _ int) ([][]byte, error) {
	return nil, d.Available(ctx)
}

const (
	inputName  = "input.pdf"
	outputStem = "page"
)

// pdftoppmArgs builds the command line shared by the local and container converters.
func pdftoppmArgs(dir string, dpi int) []string {
	return []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		filepath.Join(dir, inputName),
		filepath.Join(dir, outputStem),
	}
}

// collectPages reads pdftoppm output files ordered by page number. pdftoppm zero-pads the
// suffix according to the page count, so lexical order is not enough.
func collectPages(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	type page struct {
		number int
		path   string
	}

	pages := make([]page, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, outputStem+"-") || filepath.Ext(name) != ".png" {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, outputStem+"-"), ".png")
		number, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		pages = append(pages, page{number: number, path: filepath.Join(dir, name)})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })

	result := make([][]byte, 0, len(pages))
	for _, p := range pages {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", p.number, err)
		}
		result = append(result, data)
	}
	return result, nil
}

func prepareWorkspace(pdf []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "supermarks-pdf-*")
	if err != nil {
		return "", nil, fmt.Errorf("create workspace: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if err := os.WriteFile(filepath.Join(dir, inputName), pdf, 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write pdf: %w", err)
	}
	return dir, cleanup, nil
}
