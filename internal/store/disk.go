package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskImageStore writes species images to a local directory that the HTTP
// server exposes under urlPrefix.
type DiskImageStore struct {
	dir       string
	urlPrefix string
}

func NewDiskImageStore(dir, urlPrefix string) (*DiskImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskImageStore{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Dir is the directory images are written to.
func (s *DiskImageStore) Dir() string { return s.dir }

func (s *DiskImageStore) Save(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	name := uuid.New().String() + strings.ToLower(path.Ext(filename))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return s.urlPrefix + "/" + name, nil
}

// Delete removes the file behind url. Foreign URLs and missing files are ignored.
func (s *DiskImageStore) Delete(ctx context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.urlPrefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
