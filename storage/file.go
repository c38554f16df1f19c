package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtension is the file extension used when none is given.
const DefaultExtension = "jvivo"

type file struct {
	root string
	ext  string
}

// NewFile returns a Storage that keeps every record in its own file at
// <root>/<collection>/<key>.<ext>.
//
// Collection directories are created on the first Put.
func NewFile(root, ext string) Storage {
	if ext == "" {
		ext = DefaultExtension
	}
	return &file{
		root: root,
		ext:  strings.TrimPrefix(ext, "."),
	}
}

func (f *file) dir(collection string) string {
	return filepath.Join(f.root, collection)
}

func (f *file) path(collection, key string) string {
	return filepath.Join(f.root, collection, key+"."+f.ext)
}

func (f *file) List(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := strings.CutSuffix(e.Name(), "."+f.ext)
		if !ok || key == "" {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (f *file) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(f.path(collection, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s/%s: %w", collection, key, err)
	}
	return content, nil
}

func (f *file) Put(ctx context.Context, collection, key string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir(collection), 0o750); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	if err := os.WriteFile(f.path(collection, key), content, 0o640); err != nil {
		return fmt.Errorf("failed to write record %s/%s: %w", collection, key, err)
	}
	return nil
}

func (f *file) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(f.path(collection, key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", collection, key, err)
	}
	return nil
}
