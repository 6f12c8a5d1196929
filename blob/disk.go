package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore writes images under a local directory and serves them from
// baseURL (the web server mounts the directory as static files). For
// development only.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk store: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the backing directory, for mounting as a static route.
func (d *DiskStore) Dir() string {
	return d.dir
}

func (d *DiskStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	path := filepath.Join(d.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("disk store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("disk store: write %s: %w", key, err)
	}
	return d.baseURL + "/" + key, nil
}

func (d *DiskStore) Delete(_ context.Context, url string) error {
	key := strings.TrimPrefix(strings.TrimPrefix(url, d.baseURL), "/")
	if key == "" || key == url {
		return fmt.Errorf("disk store: url %q is not under this store", url)
	}
	if err := os.Remove(filepath.Join(d.dir, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
