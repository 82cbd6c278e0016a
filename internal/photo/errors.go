package photo

import (
	"errors"
	"fmt"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

// UploadError reports a failed photo upload for one point or item.
type UploadError struct {
	Segment string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("photo upload for %s failed: %v", e.Segment, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// DeleteError reports a failed blob delete.
type DeleteError struct {
	URL string
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("photo delete for %s failed: %v", e.URL, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// BlobGone reports whether a failed delete left nothing to delete in this
// store: the blob is already missing or its URL belongs to another store.
func BlobGone(err error) bool {
	var de *DeleteError
	if !errors.As(err, &de) {
		return false
	}
	return errors.Is(de.Err, apperror.ErrNotFound) || apperror.IsValidation(de.Err)
}
