package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Local persists blobs on the local filesystem beneath a root directory.
// References are root-relative paths with forward slashes.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal constructs a filesystem-backed blob store rooted at dir.
func NewLocal(dir string, logger zerolog.Logger) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Local{
		root:   dir,
		logger: logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// Put writes the blob under name and returns the normalized reference.
func (l *Local) Put(ctx context.Context, name string, reader io.Reader) (string, error) {
	ref, err := normalizeRef(name)
	if err != nil {
		return "", err
	}

	target := filepath.Join(l.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	l.logger.Debug().Str("ref", ref).Msg("blob stored")
	return ref, nil
}

// Get opens the blob for reading. The caller owns the returned ReadCloser.
func (l *Local) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	normalized, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(l.root, filepath.FromSlash(normalized)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	return file, nil
}

// Delete removes the blob. A missing blob yields ErrNotFound.
func (l *Local) Delete(ctx context.Context, ref string) error {
	normalized, err := normalizeRef(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(l.root, filepath.FromSlash(normalized))); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	return nil
}

// normalizeRef flattens backslashes and rejects path escapes.
func normalizeRef(name string) (string, error) {
	ref := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	ref = strings.TrimPrefix(ref, "/")
	if ref == "" {
		return "", fmt.Errorf("blob name must not be empty")
	}

	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}

	return cleaned, nil
}
