package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/supermarks-api/internal/models"
	"github.com/noah-isme/supermarks-api/internal/observability"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
)

const maxFilenameRunes = 255

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/tiff": true,
	"image/bmp":  true,
}

// uploadPolicy admits submission and answer key files.
type uploadPolicy struct {
	maxSize int64
}

type acceptedFile struct {
	originalName string
	storedName   string
	kind         string
	contentType  string
	data         []byte
	checksum     string
}

func (p uploadPolicy) accept(header *multipart.FileHeader) (acceptedFile, error) {
	if header == nil {
		return acceptedFile{}, fmt.Errorf("%w: file is required", pipeline.ErrValidation)
	}
	if header.Size > p.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return acceptedFile{}, fmt.Errorf("%s: %w", header.Filename, ErrUploadTooLarge)
	}

	handle, err := header.Open()
	if err != nil {
		return acceptedFile{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, p.maxSize+1)); err != nil {
		return acceptedFile{}, err
	}
	if int64(buf.Len()) > p.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return acceptedFile{}, fmt.Errorf("%s: %w", header.Filename, ErrUploadTooLarge)
	}

	detected := mimetype.Detect(buf.Bytes()).String()
	kind, ok := fileKind(detected)
	if !ok {
		observability.UploadRejected().WithLabelValues("type").Inc()
		return acceptedFile{}, fmt.Errorf("%s (%s): %w", header.Filename, detected, ErrUploadTypeNotAllowed)
	}

	stored := sanitizeFileName(header.Filename)
	checksum := sha256.Sum256(buf.Bytes())
	return acceptedFile{
		originalName: originalFileName(header.Filename, stored),
		storedName:   stored,
		kind:         kind,
		contentType:  baseMime(detected),
		data:         buf.Bytes(),
		checksum:     hex.EncodeToString(checksum[:]),
	}, nil
}

func baseMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	return lower
}

func fileKind(detected string) (string, bool) {
	m := baseMime(detected)
	if m == "application/pdf" {
		return models.FileKindPDF, true
	}
	if allowedImageTypes[m] {
		return models.FileKindImage, true
	}
	return "", false
}

// originalFileName keeps the client's name without directories, falling back to the storage name.
func originalFileName(name, fallback string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" || !utf8.ValidString(name) {
		return fallback
	}
	if utf8.RuneCountInString(name) > maxFilenameRunes {
		name = string([]rune(name)[:maxFilenameRunes])
	}
	return name
}

// sanitizeFileName derives the storage key element for an upload.
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" || base == "." {
		base = "upload"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == "." {
		ext = ".bin"
	}
	return base + ext
}
