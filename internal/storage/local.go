package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

// LocalStore keeps photos on the local filesystem. The inspection API
// serves basePath under publicBase.
type LocalStore struct {
	basePath   string
	publicBase string
	logger     *zap.Logger
}

// NewLocalStore creates the photo directory if needed.
func NewLocalStore(basePath, publicBase string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	logger.Info("Using local photo storage", zap.String("path", basePath))
	return &LocalStore{
		basePath:   basePath,
		publicBase: strings.TrimRight(publicBase, "/"),
		logger:     logger,
	}, nil
}

// BasePath is the directory photos are written to.
func (s *LocalStore) BasePath() string {
	return s.basePath
}

// Upload writes r to basePath/key.
func (s *LocalStore) Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	filePath, err := s.safeJoin(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create photo directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			s.logger.Error("Failed to close file after write error", zap.Error(cerr))
		}
		if rerr := os.Remove(filePath); rerr != nil {
			s.logger.Error("Failed to remove file after write error", zap.Error(rerr))
		}
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			s.logger.Error("Failed to remove file after close error", zap.Error(rerr))
		}
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return s.publicBase + "/" + filepath.ToSlash(key), nil
}

// Delete removes the file behind publicURL.
func (s *LocalStore) Delete(ctx context.Context, publicURL string) error {
	prefix := s.publicBase + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return apperror.Invalid("photo_path", "URL does not belong to this store")
	}
	filePath, err := s.safeJoin(strings.TrimPrefix(publicURL, prefix))
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return apperror.ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// safeJoin resolves key relative to basePath and rejects directory traversal.
func (s *LocalStore) safeJoin(key string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", apperror.Invalid("photo_path", "path traversal attempt")
	}
	return absPath, nil
}
