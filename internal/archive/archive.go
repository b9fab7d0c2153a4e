// Package archive keeps copies of published videos, either in a local
// directory or a GCS bucket.
package archive

import (
	"context"
	"io"
)

// Store persists published videos and lists what has been kept.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	List(ctx context.Context) ([]string, error)
}
