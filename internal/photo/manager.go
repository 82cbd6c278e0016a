// Package photo uploads, replaces and deletes the single photo attached to a
// damage point or checklist item.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/config"
	"github.com/autoerp-inspection/backend/internal/storage"
)

// File is an uploaded original.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Target identifies where a photo belongs: the order, the inventory type slug
// and either a view key or an item id.
type Target struct {
	OrderID       int64
	InventoryType string
	Segment       string
}

// Manager applies the size limit and compression before talking to the blob
// store.
type Manager struct {
	store       storage.BlobStore
	envFolder   string
	maxBytes    int64
	targetBytes int64
	maxDim      int
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// NewManager creates a new photo manager.
func NewManager(store storage.BlobStore, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		store:       store,
		envFolder:   cfg.EnvFolder(),
		maxBytes:    cfg.MaxUploadBytes,
		targetBytes: cfg.CompressTargetBytes,
		maxDim:      cfg.CompressMaxDim,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Validate rejects files that may not be sent to the blob store.
func (m *Manager) Validate(f File) error {
	if len(f.Data) == 0 {
		return apperror.Invalid("file", "file is empty")
	}
	if m.maxBytes > 0 && int64(len(f.Data)) > m.maxBytes {
		return apperror.Invalid("file", "file is %d bytes, limit is %d", len(f.Data), m.maxBytes)
	}
	if f.ContentType != "" && !strings.HasPrefix(f.ContentType, "image/") {
		return apperror.Invalid("file", "unsupported content type %q", f.ContentType)
	}
	return nil
}

// Upload compresses f and stores it under t. A compression failure falls
// back to the original bytes.
func (m *Manager) Upload(ctx context.Context, f File, t Target) (string, error) {
	if err := m.Validate(f); err != nil {
		return "", err
	}

	data, contentType, ext := f.Data, f.ContentType, extension(f)
	if compressed, err := compress(f.Data, m.maxDim, m.targetBytes); err == nil {
		data, contentType, ext = compressed, "image/jpeg", "jpg"
	} else if !errors.Is(err, errNotSmaller) {
		m.logger.Warn("Photo compression failed, uploading original",
			zap.String("segment", t.Segment),
			zap.Error(err),
		)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := m.key(t, ext)
	url, err := m.store.Upload(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &UploadError{Segment: t.Segment, Err: err}
	}

	m.logger.Info("Photo uploaded",
		zap.String("key", key),
		zap.Int("original_bytes", len(f.Data)),
		zap.Int("stored_bytes", len(data)),
	)
	return url, nil
}

// Replace uploads f and deletes oldURL only after the upload succeeded. A
// failed delete of the old blob is returned as a *DeleteError alongside the
// new URL.
func (m *Manager) Replace(ctx context.Context, f File, t Target, oldURL string) (string, error) {
	url, err := m.Upload(ctx, f, t)
	if err != nil {
		return "", err
	}
	if oldURL == "" || oldURL == url {
		return url, nil
	}
	if err := m.Delete(ctx, oldURL); err != nil {
		return url, err
	}
	return url, nil
}

// Delete removes the blob behind url.
func (m *Manager) Delete(ctx context.Context, url string) error {
	if url == "" {
		return apperror.Invalid("photo_path", "no photo to delete")
	}
	if err := m.store.Delete(ctx, url); err != nil {
		m.logger.Error("Failed to delete photo", zap.String("url", url), zap.Error(err))
		return &DeleteError{URL: url, Err: err}
	}
	return nil
}

// key builds {env}/inventories/{order}/{type}/{segment}/{millis}_{uuid}.{ext}.
func (m *Manager) key(t Target, ext string) string {
	return fmt.Sprintf("%s/inventories/%d/%s/%s/%d_%s.%s",
		m.envFolder,
		t.OrderID,
		pathSegment(t.InventoryType),
		pathSegment(t.Segment),
		m.now().UnixMilli(),
		m.newID(),
		ext,
	)
}

func extension(f File) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), "."); ext != "" {
		return ext
	}
	switch f.ContentType {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	}
	return "jpg"
}

func pathSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "..", "-")
	if s == "" {
		return "unknown"
	}
	return s
}
