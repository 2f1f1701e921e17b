package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxSize is the upload size limit when none is configured.
const DefaultMaxSize = 10 << 20

// Uploader sends a local image to the asset host and resolves its public URL.
type Uploader interface {
	Upload(ctx context.Context, blob Blob) (string, error)
}

// ObjectStoreUploader uploads into an ObjectStore served by a Host.
type ObjectStoreUploader struct {
	store   ObjectStore
	baseURL string
	maxSize int64
	newID   func() string
}

var _ Uploader = (*ObjectStoreUploader)(nil)

// NewObjectStoreUploader creates an uploader whose URLs start with baseURL.
func NewObjectStoreUploader(store ObjectStore, baseURL string, maxSize int64) *ObjectStoreUploader {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &ObjectStoreUploader{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
		newID:   func() string { return uuid.New().String() },
	}
}

// Upload validates blob as an image and stores it under a fresh asset ID.
func (u *ObjectStoreUploader) Upload(ctx context.Context, blob Blob) (string, error) {
	if blob == nil {
		return "", &UploadError{Err: ErrUnreadableBlob}
	}
	name := sanitizeName(blob.Name())
	fail := func(err error) (string, error) {
		return "", &UploadError{Name: name, Err: err}
	}

	data, err := readLimited(blob, u.maxSize)
	if err != nil {
		return fail(err)
	}
	if len(data) == 0 {
		return fail(ErrEmptyBlob)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fail(fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String()))
	}

	id := u.newID()
	if _, err := u.store.Put(ctx, objectName(id, name), data, mtype.String()); err != nil {
		return fail(err)
	}
	return PublicURL(u.baseURL, id, name), nil
}

func readLimited(blob Blob, maxSize int64) ([]byte, error) {
	rc, err := blob.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableBlob, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableBlob, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxSize)
	}
	return data, nil
}

// PublicURL builds the URL under which the Host serves an asset.
func PublicURL(baseURL, id, name string) string {
	return strings.TrimRight(baseURL, "/") + "/media/" + id + "/" + url.PathEscape(name)
}

func objectName(id, name string) string {
	return id + "/" + name
}

// sanitizeName strips directory components from a client supplied name.
func sanitizeName(name string) string {
	clean := filepath.Base(filepath.Clean(name))
	clean = strings.ReplaceAll(clean, "/", "_")
	clean = strings.ReplaceAll(clean, "\\", "_")
	if clean == "." || clean == ".." || clean == "" {
		return "image"
	}
	return clean
}

// validateAssetID checks that id is an asset ID issued by the uploader.
func validateAssetID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAssetID, id)
	}
	return nil
}

// IsRejected reports whether err means the image itself was refused, as
// opposed to a transport failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrUnreadableBlob) ||
		errors.Is(err, ErrEmptyBlob) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrNotImage)
}
