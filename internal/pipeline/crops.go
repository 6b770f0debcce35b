package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/noah-isme/supermarks-api/internal/models"
)

// Page is a decoded page image addressed by its 1-based number.
type Page struct {
	Number int
	Image  image.Image
}

// CropImage is the stitched answer image for one question.
type CropImage struct {
	QuestionID  uint
	PNG         []byte
	Width       int
	Height      int
	Placeholder bool
}

// BuildCrops extracts and stitches every question's regions. Regions are used in the order
// given; callers pass them sorted by insertion.
func BuildCrops(ctx context.Context, submissionID uint, pages []Page, questions []models.Question) ([]CropImage, error) {
	byNumber := make(map[int]image.Image, len(pages))
	for _, page := range pages {
		byNumber[page.Number] = page.Image
	}

	crops := make([]CropImage, 0, len(questions))
	for _, question := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		crop, err := buildCrop(submissionID, byNumber, len(pages), question)
		if err != nil {
			return nil, err
		}
		crops = append(crops, crop)
	}

	return crops, nil
}

func buildCrop(submissionID uint, pages map[int]image.Image, pageCount int, question models.Question) (CropImage, error) {
	var stitched *image.NRGBA
	placeholder := len(question.Regions) == 0

	if placeholder {
		stitched = Placeholder()
	} else {
		parts := make([]image.Image, 0, len(question.Regions))
		for _, region := range question.Regions {
			page, ok := pages[region.PageNumber]
			if !ok {
				return CropImage{}, &StageError{
					Err:          ErrPageOutOfRange,
					Stage:        StageCrops,
					SubmissionID: submissionID,
					QuestionID:   question.ID,
					PageNumber:   region.PageNumber,
					Detail:       fmt.Sprintf("region %d references page %d but the submission has %d pages", region.ID, region.PageNumber, pageCount),
				}
			}

			bounds := page.Bounds()
			rect := PixelRect(region, bounds.Dx(), bounds.Dy()).Add(bounds.Min)
			parts = append(parts, imaging.Crop(page, rect))
		}
		stitched = Stitch(parts)
	}

	encoded, err := EncodePNG(stitched)
	if err != nil {
		return CropImage{}, err
	}

	bounds := stitched.Bounds()
	return CropImage{
		QuestionID:  question.ID,
		PNG:         encoded,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Placeholder: placeholder,
	}, nil
}
