package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Storage persisting its keys as a JSON object in a single file.
// The file is created with 0600 permissions since it holds a long-lived
// credential. Writes go through a temp file rename so a crash mid-write
// cannot truncate the previous contents.
type File struct {
	mu   sync.Mutex
	path string
}

// ensure that File implements the Storage interface
var _ Storage = (*File)(nil)

// NewFile creates a file-backed store at path. The file does not need to
// exist yet; parent directories are not created.
func NewFile(path string) (*File, error) {
	const op = "storage.NewFile"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty", op)
	}
	return &File{path: path}, nil
}

// Get implements Storage.Get.
func (s *File) Get(_ context.Context, key string) (string, bool, error) {
	const op = "File.Get"
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set implements Storage.Set.
func (s *File) Set(_ context.Context, key, value string) error {
	const op = "File.Set"
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m[key] = value
	if err := s.write(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Remove implements Storage.Remove.
func (s *File) Remove(_ context.Context, key string) error {
	const op = "File.Remove"
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	if err := s.write(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *File) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return map[string]string{}, nil
	case err != nil:
		return nil, err
	}
	m := map[string]string{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", s.path, err)
	}
	return m, nil
}

func (s *File) write(m map[string]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
