// Package blob stores downloaded poster images.
package blob

import (
	"context"
	"io"
)

// Store persists binary artifacts and returns a stable URI for each object.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
