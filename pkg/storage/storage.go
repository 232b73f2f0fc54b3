// Package storage archives uploaded statement files next to their import batch.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrFileNotFound = errors.New("file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	BatchID     uuid.UUID `json:"batch_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for file storage operations
type Storage interface {
	// Upload stores a file under batchID and returns its metadata
	Upload(ctx context.Context, batchID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error)

	// Download retrieves a file by its ID
	Download(ctx context.Context, batchID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Delete removes a file by its ID
	Delete(ctx context.Context, batchID uuid.UUID, fileID uuid.UUID) error

	// DeleteBatch removes every file archived for a batch
	DeleteBatch(ctx context.Context, batchID uuid.UUID) error

	// List returns all files in a batch
	List(ctx context.Context, batchID uuid.UUID) ([]*FileInfo, error)

	// GetInfo returns metadata for a file without downloading
	GetInfo(ctx context.Context, batchID uuid.UUID, fileID uuid.UUID) (*FileInfo, error)
}

// Config holds storage configuration
type Config struct {
	LocalPath string
}

// New creates the local filesystem storage.
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath)
}
