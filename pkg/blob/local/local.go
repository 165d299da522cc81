// Package local stores blobs as plain files under a root directory. The
// server exposes the directory read-only so PublicURL resolves to it.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"folio/pkg/blob"
	"folio/pkg/log"
)

const (
	dirPerm     = 0o750
	tempPattern = ".upload-*"
)

type Store struct {
	root    string
	baseURL string
}

func New(root, baseURL string) *Store {
	return &Store{root: root, baseURL: baseURL}
}

// Root returns the directory objects are written to.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) Init(_ context.Context) error {
	return os.MkdirAll(s.root, dirPerm)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put spools r into a temp file next to the target and hard-links it into
// place, so a reader never sees a partial object and existing keys are kept.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	if err := blob.ValidateKey(key); err != nil {
		return err
	}

	target := s.path(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to create blob directory")
		return err
	}

	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create temporary file")
		return err
	}
	defer cleanupTempFile(tempFile)

	if _, err := io.Copy(tempFile, &ctxReader{ctx: ctx, r: r}); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to write blob")
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}

	if err := os.Link(tempFile.Name(), target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return blob.ObjectExistsError{Key: key}
		}
		log.Error().Err(err).Str("target_path", target).Msg("Failed to publish blob")
		return err
	}

	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := blob.ValidateKey(key); err != nil {
			errs = append(errs, err)
			continue
		}

		target := s.path(key)
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}

		// Drop the record directory once its last image is gone.
		if dir := filepath.Dir(target); dir != s.root {
			_ = os.Remove(dir)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	if err := blob.ValidateKey(key); err != nil {
		return false, err
	}

	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *Store) PublicURL(key string) string {
	return blob.JoinURL(s.baseURL, key)
}

// cleanupTempFile closes and removes the temporary file.
func cleanupTempFile(tempFile *os.File) {
	if err := tempFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Error().Err(err).Msg("Failed to close temporary file")
	}
	if err := os.Remove(tempFile.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Str("temp_file", tempFile.Name()).Msg("Failed to remove temporary file")
	}
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
