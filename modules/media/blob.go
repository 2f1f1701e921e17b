package media

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// Blob is a local image handed over by the presentation layer.
type Blob interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type fileBlob struct {
	path string
}

// NewFileBlob returns a Blob reading the file at path.
func NewFileBlob(path string) Blob {
	return fileBlob{path: path}
}

func (b fileBlob) Name() string {
	return filepath.Base(b.path)
}

func (b fileBlob) Open() (io.ReadCloser, error) {
	return os.Open(b.path)
}

type bytesBlob struct {
	name string
	data []byte
}

// NewBytesBlob returns a Blob over in-memory data.
func NewBytesBlob(name string, data []byte) Blob {
	return bytesBlob{name: name, data: data}
}

func (b bytesBlob) Name() string {
	return b.name
}

func (b bytesBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}
