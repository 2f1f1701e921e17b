package media

import (
	"errors"
	"fmt"
)

// Sentinel errors for media operations.
var (
	ErrUnreadableBlob = errors.New("image source is unreadable")
	ErrEmptyBlob      = errors.New("image is empty")
	ErrTooLarge       = errors.New("image exceeds the size limit")
	ErrNotImage       = errors.New("file is not an image")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrInvalidAssetID = errors.New("invalid asset ID")
)

// UploadError is returned by Uploader.Upload.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
