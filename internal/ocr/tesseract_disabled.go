//go:build !tesseract

package ocr

import "github.com/rs/zerolog"

// TesseractName is the registry name of the Tesseract provider.
const TesseractName = "tesseract"

// NewTesseractFactory reports the provider as unavailable in builds without the tesseract tag.
func NewTesseractFactory(_ []string, _ zerolog.Logger) Factory {
	return func() (Provider, error) {
		return nil, Unavailable(TesseractName, "binary built without tesseract support",
			"install tesseract-ocr and libtesseract-dev, then rebuild with -tags tesseract")
	}
}
