package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/pkg/pdfraster"
)

// SourceFile is one stored upload handed to the page builder in upload order.
type SourceFile struct {
	Kind string
	Name string
	Data []byte
}

// PageImage is one normalized page ready to be stored.
type PageImage struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// PageBuilder turns a submission's uploads into an ordered list of PNG pages.
type PageBuilder struct {
	converter pdfraster.Converter
	dpi       int
}

// NewPageBuilder constructs a page builder. A nil converter disables PDF support.
func NewPageBuilder(converter pdfraster.Converter, dpi int) *PageBuilder {
	if converter == nil {
		converter = pdfraster.Disabled{}
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &PageBuilder{converter: converter, dpi: dpi}
}

// MaxKeyPages bounds how many pages an exam's answer key may render to.
const MaxKeyPages = 10

// DPI is the rasterization resolution used for PDFs.
func (b *PageBuilder) DPI() int {
	return b.dpi
}

// pageScope names the owner of a page build so failures carry the right context.
type pageScope struct {
	stage        Stage
	examID       uint
	submissionID uint
}

func (p pageScope) fail(err error, page int, detail string) *StageError {
	return &StageError{
		Err:          err,
		Stage:        p.stage,
		ExamID:       p.examID,
		SubmissionID: p.submissionID,
		PageNumber:   page,
		Detail:       detail,
	}
}

// Build accepts exactly one PDF or one or more images. Pages are numbered from 1.
func (b *PageBuilder) Build(ctx context.Context, submissionID uint, files []SourceFile) ([]PageImage, error) {
	scope := pageScope{stage: StagePages, submissionID: submissionID}
	if len(files) == 0 {
		return nil, scope.fail(ErrNoFilesUploaded, 0, "")
	}

	pdfs, images := 0, 0
	for _, file := range files {
		switch file.Kind {
		case models.FileKindPDF:
			pdfs++
		case models.FileKindImage:
			images++
		default:
			return nil, scope.fail(ErrUnsupportedFileCombination, 0, fmt.Sprintf("file %q has unsupported kind %q", file.Name, file.Kind))
		}
	}

	if pdfs > 1 || (pdfs == 1 && images > 0) {
		return nil, scope.fail(ErrUnsupportedFileCombination, 0,
			fmt.Sprintf("got %d pdf and %d image files; upload exactly one pdf or only images", pdfs, images))
	}

	if pdfs == 1 {
		return b.fromPDF(ctx, scope, files[0], 1, 0)
	}

	pages := make([]PageImage, 0, len(files))
	for i, file := range files {
		page, err := b.fromImage(ctx, scope, file, i+1)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// BuildKey renders an exam's answer key files in upload order. PDFs and images may be mixed;
// numbering continues across files and the total is capped at MaxKeyPages.
func (b *PageBuilder) BuildKey(ctx context.Context, examID uint, files []SourceFile) ([]PageImage, error) {
	scope := pageScope{stage: StageKeyPages, examID: examID}
	if len(files) == 0 {
		return nil, scope.fail(ErrNoFilesUploaded, 0, "upload answer key files first")
	}

	pages := make([]PageImage, 0, len(files))
	for _, file := range files {
		next := len(pages) + 1
		remaining := MaxKeyPages - len(pages)
		if remaining <= 0 {
			return nil, scope.fail(ErrValidation, 0, fmt.Sprintf("too many key pages; maximum supported is %d", MaxKeyPages))
		}

		switch file.Kind {
		case models.FileKindPDF:
			rendered, err := b.fromPDF(ctx, scope, file, next, remaining)
			if err != nil {
				return nil, err
			}
			pages = append(pages, rendered...)
		case models.FileKindImage:
			page, err := b.fromImage(ctx, scope, file, next)
			if err != nil {
				return nil, err
			}
			pages = append(pages, page)
		default:
			return nil, scope.fail(ErrUnsupportedFileCombination, 0, fmt.Sprintf("file %q has unsupported kind %q", file.Name, file.Kind))
		}
	}
	return pages, nil
}

// fromPDF rasterizes one PDF numbering pages from first. A positive limit rejects longer documents.
func (b *PageBuilder) fromPDF(ctx context.Context, scope pageScope, file SourceFile, first, limit int) ([]PageImage, error) {
	if err := b.converter.Available(ctx); err != nil {
		return nil, conversionError(scope, err)
	}

	rasters, err := b.converter.Convert(ctx, file.Data, b.dpi)
	if err != nil {
		if errors.Is(err, pdfraster.ErrUnavailable) {
			return nil, conversionError(scope, err)
		}
		return nil, scope.fail(ErrValidation, 0, fmt.Sprintf("could not rasterize %q: %v", file.Name, err))
	}
	if limit > 0 && len(rasters) > limit {
		return nil, scope.fail(ErrValidation, 0, fmt.Sprintf("%q has %d pages; maximum supported is %d", file.Name, len(rasters), limit))
	}

	pages := make([]PageImage, 0, len(rasters))
	for i, raster := range rasters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := normalizePage(raster, first+i)
		if err != nil {
			return nil, scope.fail(ErrValidation, first+i, err.Error())
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (b *PageBuilder) fromImage(ctx context.Context, scope pageScope, file SourceFile, number int) (PageImage, error) {
	if err := ctx.Err(); err != nil {
		return PageImage{}, err
	}
	page, err := normalizePage(file.Data, number)
	if err != nil {
		return PageImage{}, scope.fail(ErrValidation, number, fmt.Sprintf("file %q: %v", file.Name, err))
	}
	return page, nil
}

func normalizePage(data []byte, number int) (PageImage, error) {
	decoded, err := DecodeImage(data)
	if err != nil {
		return PageImage{}, err
	}

	normalized := Normalize(decoded)
	encoded, err := EncodePNG(normalized)
	if err != nil {
		return PageImage{}, err
	}

	bounds := normalized.Bounds()
	return PageImage{Number: number, PNG: encoded, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func conversionError(scope pageScope, err error) error {
	stageErr := scope.fail(ErrConversionUnavailable, 0, err.Error())

	var unavailable *pdfraster.UnavailableError
	if errors.As(err, &unavailable) {
		stageErr.Hint = unavailable.Hint
	}
	return stageErr
}
