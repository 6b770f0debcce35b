package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Local keeps artifacts under a directory on disk.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal creates the root directory if needed.
func NewLocal(root string, logger zerolog.Logger) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &Local{root: abs, logger: logger.With().Str("component", "storage.local").Logger()}, nil
}

// Write implements Store. Files are written to a temporary name and renamed into place.
func (l *Local) Write(ctx context.Context, key Key, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := key.validate(); err != nil {
		return "", err
	}

	rel := key.Path()
	target, err := l.resolve(rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit artifact: %w", err)
	}

	return rel, nil
}

// Read implements Store.
func (l *Local) Read(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// DeletePrefix implements Store.
func (l *Local) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := l.resolve(prefix)
	if err != nil {
		return err
	}
	if target == l.root {
		return fmt.Errorf("refusing to delete storage root")
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}

	l.logger.Debug().Str("prefix", prefix).Msg("artifacts deleted")
	return nil
}

func (l *Local) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes storage root", rel)
	}
	return filepath.Join(l.root, cleaned), nil
}
