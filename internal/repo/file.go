package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
)

// FileStore keeps the collection as one JSON document.
//
// A missing file reads as an empty store until the file has existed: once it
// has been read or written, a vanished file is reported as a read failure.
type FileStore struct {
	Path string

	mu   sync.Mutex
	seen bool
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(ctx context.Context) (*domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !s.seen {
			return &domain.Collection{Projects: []domain.Project{}}, nil
		}
		return nil, apperr.Wrap(apperr.FileReadError, err, "failed to read task file %s", s.Path)
	}
	var c domain.Collection
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, apperr.Wrap(apperr.FileParseError, err, "failed to parse task file %s", s.Path)
		}
	}
	normalize(&c)
	s.seen = true
	return &c, nil
}

func (s *FileStore) Save(ctx context.Context, c *domain.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to encode task file")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to write task file %s", s.Path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.FileWriteError, err, "failed to write task file %s", s.Path)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to write task file %s", s.Path)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return apperr.Wrap(apperr.FileWriteError, err, "failed to replace task file %s", s.Path)
	}
	s.seen = true
	return nil
}
