// Package storage persists upload and pipeline artifact bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Artifact kinds.
const (
	KindUpload    = "uploads"
	KindPage      = "pages"
	KindCrop      = "crops"
	KindKeyUpload = "key_uploads"
	KindKeyPage   = "key_pages"
)

// ErrNotFound indicates no artifact exists at the requested path.
var ErrNotFound = errors.New("artifact not found")

// Key addresses one artifact. Generation isolates one stage run from every other run.
type Key struct {
	Kind       string
	OwnerID    uint
	Generation string
	Name       string
}

// Prefix is the namespace shared by every artifact of the key's generation.
func (k Key) Prefix() string {
	return Prefix(k.Kind, k.OwnerID, k.Generation)
}

// Path is the relative location of the artifact.
func (k Key) Path() string {
	return path.Join(k.Prefix(), k.Name)
}

func (k Key) validate() error {
	for label, value := range map[string]string{"kind": k.Kind, "generation": k.Generation, "name": k.Name} {
		if value == "" {
			return fmt.Errorf("artifact %s must not be empty", label)
		}
		if strings.Contains(value, "/") || strings.Contains(value, "..") {
			return fmt.Errorf("artifact %s %q must be a single path element", label, value)
		}
	}
	return nil
}

// Prefix builds the generation namespace `{kind}/{owner}/{generation}`.
func Prefix(kind string, ownerID uint, generation string) string {
	return path.Join(kind, fmt.Sprintf("%d", ownerID), generation)
}

// PageName is the file name of a page image.
func PageName(number int) string {
	return fmt.Sprintf("page-%04d.png", number)
}

// CropName is the file name of a question crop.
func CropName(questionID uint) string {
	return fmt.Sprintf("question-%d.png", questionID)
}

// Store reads and writes artifact bytes.
type Store interface {
	// Write stores data and returns the path later passed to Read.
	Write(ctx context.Context, key Key, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	// DeletePrefix removes every artifact under a Prefix. Missing prefixes are not an error.
	DeletePrefix(ctx context.Context, prefix string) error
}
