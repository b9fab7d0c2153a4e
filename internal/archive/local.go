package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive file: %w", err)
	}

	return path, nil
}

func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}
