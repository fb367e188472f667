package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"Leviosa/backend/go/internal/models"
)

// UploadStore persists uploaded documents under their generated names.
type UploadStore interface {
	Save(ctx context.Context, name string, data []byte) error
	// Load returns models.ErrNotFound when the name is unknown.
	Load(ctx context.Context, name string) ([]byte, error)
}

// CleanName reduces a client supplied path such as "/uploads/x.pdf" to its base name.
// Names that would escape the upload root are rejected with models.ErrNotFound.
func CleanName(path string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", models.ErrNotFound, path)
	}
	return name, nil
}
