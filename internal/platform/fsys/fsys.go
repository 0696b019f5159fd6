// Package fsys provides context-aware file access over an afero file system.
package fsys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileSystem is the file access surface used by instance services.
type FileSystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	ReadAllText(ctx context.Context, path string) (string, error)
	WriteAllText(ctx context.Context, path, content string) error
	DirectoryExists(ctx context.Context, path string) (bool, error)
	CreateDirectory(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	ReadDir(ctx context.Context, path string) ([]string, error)
}

// Service implements FileSystem on top of afero.
type Service struct {
	fs afero.Fs
}

// New wraps an afero file system. A nil fs uses the OS file system.
func New(fs afero.Fs) *Service {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Service{fs: fs}
}

// NewOS returns a Service backed by the real file system.
func NewOS() *Service {
	return New(afero.NewOsFs())
}

// NewMemory returns a Service backed by an in-memory file system.
func NewMemory() *Service {
	return New(afero.NewMemMapFs())
}

// Exists reports whether a regular file exists at path.
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// ReadAllText returns the file content at path.
func (s *Service) ReadAllText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteAllText replaces the file at path. The content is written to a
// sibling temp file first and renamed into place.
func (s *Service) WriteAllText(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(content), filePerm); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// DirectoryExists reports whether a directory exists at path.
func (s *Service) DirectoryExists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := afero.DirExists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// CreateDirectory creates path and any missing parents.
func (s *Service) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// Remove deletes path recursively. A missing path is not an error.
func (s *Service) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// ReadDir returns the sorted entry names of the directory at path.
func (s *Service) ReadDir(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
