package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

func TestLocalStoreUploadAndDelete(t *testing.T) {
	tmpdir := t.TempDir()
	store, err := NewLocalStore(tmpdir, "http://localhost:8080/photos/", zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("fake jpeg data")
	key := "dev/inventories/12/carroceria/front/1700000000000_abc.jpg"

	url, err := store.Upload(ctx, key, "image/jpeg", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/photos/"+key, url)

	written, err := os.ReadFile(filepath.Join(tmpdir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, data, written)

	require.NoError(t, store.Delete(ctx, url))

	_, err = os.Stat(filepath.Join(tmpdir, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStoreDeleteMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/photos", zap.NewNop())
	require.NoError(t, err)

	err = store.Delete(context.Background(), "http://localhost:8080/photos/dev/missing.jpg")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestLocalStoreForeignURL(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/photos", zap.NewNop())
	require.NoError(t, err)

	err = store.Delete(context.Background(), "https://elsewhere.example/x.jpg")
	assert.True(t, apperror.IsValidation(err))
}

func TestLocalStorePathTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/photos", zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Upload(ctx, "../../etc/passwd", "image/jpeg", bytes.NewReader([]byte("x")), 1)
	assert.True(t, apperror.IsValidation(err))

	err = store.Delete(ctx, "http://localhost:8080/photos/../../etc/passwd")
	assert.True(t, apperror.IsValidation(err))
}
