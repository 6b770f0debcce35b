package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/pkg/pdfraster"
)

type fakeConverter struct {
	pages       [][]byte
	unavailable bool
	calls       int
	dpi         int
}

func (f *fakeConverter) Name() string { return "fake" }

func (f *fakeConverter) Available(context.Context) error {
	if f.unavailable {
		return &pdfraster.UnavailableError{Converter: "fake", Reason: "missing", Hint: "install the fake"}
	}
	return nil
}

func (f *fakeConverter) Convert(ctx context.Context, _ []byte, dpi int) ([][]byte, error) {
	f.calls++
	f.dpi = dpi
	if err := f.Available(ctx); err != nil {
		return nil, err
	}
	return f.pages, nil
}

func TestBuildPagesFromImagesKeepsUploadOrder(t *testing.T) {
	builder := NewPageBuilder(nil, 0)
	files := []SourceFile{
		{Kind: models.FileKindImage, Name: "a.png", Data: solidPNG(t, 30, 40, red)},
		{Kind: models.FileKindImage, Name: "b.png", Data: solidPNG(t, 50, 20, blue)},
	}

	pages, err := builder.Build(context.Background(), 1, files)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, 1, pages[0].Number)
	require.Equal(t, 30, pages[0].Width)
	require.Equal(t, 40, pages[0].Height)
	require.Equal(t, 2, pages[1].Number)
	require.Equal(t, 50, pages[1].Width)

	again, err := builder.Build(context.Background(), 1, files)
	require.NoError(t, err)
	require.Equal(t, pages, again)
}

func TestBuildPagesFromPDF(t *testing.T) {
	converter := &fakeConverter{pages: [][]byte{solidPNG(t, 20, 30, red), solidPNG(t, 20, 30, blue), solidPNG(t, 20, 30, red)}}
	builder := NewPageBuilder(converter, 200)

	pages, err := builder.Build(context.Background(), 9, []SourceFile{{Kind: models.FileKindPDF, Name: "script.pdf", Data: []byte("%PDF")}})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, 200, converter.dpi)
	for i, page := range pages {
		require.Equal(t, i+1, page.Number)
	}
}

func TestBuildPagesRejectsBadCombinations(t *testing.T) {
	pdf := SourceFile{Kind: models.FileKindPDF, Name: "a.pdf", Data: []byte("%PDF")}
	img := SourceFile{Kind: models.FileKindImage, Name: "a.png", Data: solidPNG(t, 4, 4, red)}
	converter := &fakeConverter{}
	builder := NewPageBuilder(converter, 150)

	_, err := builder.Build(context.Background(), 1, []SourceFile{pdf, img})
	require.ErrorIs(t, err, ErrUnsupportedFileCombination)

	_, err = builder.Build(context.Background(), 1, []SourceFile{pdf, pdf})
	require.ErrorIs(t, err, ErrUnsupportedFileCombination)

	_, err = builder.Build(context.Background(), 1, nil)
	require.ErrorIs(t, err, ErrNoFilesUploaded)

	require.Zero(t, converter.calls)
}

func TestBuildPagesWithoutConverterFailsLoudly(t *testing.T) {
	builder := NewPageBuilder(&fakeConverter{unavailable: true}, 150)

	_, err := builder.Build(context.Background(), 3, []SourceFile{{Kind: models.FileKindPDF, Name: "a.pdf", Data: []byte("%PDF")}})
	require.ErrorIs(t, err, ErrConversionUnavailable)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, "install the fake", stageErr.Hint)
	require.Equal(t, StagePages, stageErr.Stage)
	require.Contains(t, err.Error(), "submission 3")
}

func TestBuildPagesDisabledConverter(t *testing.T) {
	builder := NewPageBuilder(pdfraster.Disabled{}, 150)

	_, err := builder.Build(context.Background(), 3, []SourceFile{{Kind: models.FileKindPDF, Name: "a.pdf", Data: []byte("%PDF")}})
	require.ErrorIs(t, err, ErrConversionUnavailable)
	require.NotEmpty(t, HintFor(err))
}

func TestBuildPagesRejectsUndecodableImage(t *testing.T) {
	builder := NewPageBuilder(nil, 150)

	_, err := builder.Build(context.Background(), 1, []SourceFile{{Kind: models.FileKindImage, Name: "x.png", Data: []byte("nope")}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildKeyMixesPDFAndImages(t *testing.T) {
	converter := &fakeConverter{pages: [][]byte{solidPNG(t, 20, 30, red), solidPNG(t, 20, 30, blue)}}
	builder := NewPageBuilder(converter, 150)

	pages, err := builder.BuildKey(context.Background(), 4, []SourceFile{
		{Kind: models.FileKindImage, Name: "cover.png", Data: solidPNG(t, 10, 10, red)},
		{Kind: models.FileKindPDF, Name: "key.pdf", Data: []byte("%PDF")},
		{Kind: models.FileKindImage, Name: "extra.png", Data: solidPNG(t, 12, 8, blue)},
	})
	require.NoError(t, err)
	require.Len(t, pages, 4)
	for i, page := range pages {
		require.Equal(t, i+1, page.Number)
	}
	require.Equal(t, 10, pages[0].Width)
	require.Equal(t, 20, pages[1].Width)
	require.Equal(t, 12, pages[3].Width)
}

func TestBuildKeyCapsPageCount(t *testing.T) {
	rasters := make([][]byte, MaxKeyPages)
	for i := range rasters {
		rasters[i] = solidPNG(t, 4, 4, red)
	}
	builder := NewPageBuilder(&fakeConverter{pages: rasters}, 150)
	pdf := SourceFile{Kind: models.FileKindPDF, Name: "key.pdf", Data: []byte("%PDF")}
	img := SourceFile{Kind: models.FileKindImage, Name: "a.png", Data: solidPNG(t, 4, 4, blue)}

	pages, err := builder.BuildKey(context.Background(), 4, []SourceFile{pdf})
	require.NoError(t, err)
	require.Len(t, pages, MaxKeyPages)

	_, err = builder.BuildKey(context.Background(), 4, []SourceFile{img, pdf})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "maximum supported is 9")

	_, err = builder.BuildKey(context.Background(), 4, []SourceFile{pdf, img})
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildKeyErrorsNameTheExam(t *testing.T) {
	builder := NewPageBuilder(&fakeConverter{unavailable: true}, 150)

	_, err := builder.BuildKey(context.Background(), 6, nil)
	require.ErrorIs(t, err, ErrNoFilesUploaded)

	_, err = builder.BuildKey(context.Background(), 6, []SourceFile{{Kind: models.FileKindPDF, Name: "key.pdf", Data: []byte("%PDF")}})
	require.ErrorIs(t, err, ErrConversionUnavailable)
	require.Equal(t, "install the fake", HintFor(err))

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageKeyPages, stageErr.Stage)
	require.Equal(t, uint(6), stageErr.ExamID)
	require.Contains(t, err.Error(), "exam 6")
	require.NotContains(t, err.Error(), "submission")
}

func TestPageBuilderDefaultsDPI(t *testing.T) {
	require.Equal(t, 150, NewPageBuilder(nil, 0).DPI())
	require.Equal(t, 300, NewPageBuilder(nil, 300).DPI())

	converter := &fakeConverter{pages: [][]byte{solidPNG(t, 4, 4, red)}}
	builder := NewPageBuilder(converter, 200)
	_, err := builder.Build(context.Background(), 1, []SourceFile{{Kind: models.FileKindPDF, Name: "a.pdf", Data: []byte("%PDF")}})
	require.NoError(t, err)
	require.Equal(t, builder.DPI(), converter.dpi)
}
