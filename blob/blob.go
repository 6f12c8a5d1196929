// Package blob stores spider images. The service talks to the Store
// interface only; S3-compatible object storage in production, local
// disk in development.
package blob

import "context"

type Store interface {
	// Upload writes data under key and returns the public URL.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object a previous Upload returned url for.
	Delete(ctx context.Context, url string) error
}
