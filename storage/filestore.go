package storage

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStore persists each key as one file in a directory. Keys are
// hex-encoded to produce safe file names, and writes are atomic
// (temporary file + rename) so a crash never leaves a torn record.
type FileStore struct {
	dir string
}

const fileExt = ".rec"

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.dir, hex.EncodeToString([]byte(key))+fileExt)
}

// Get implements Store.
func (fs *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return data, nil
}

// Put implements Store. The write goes to a temporary file first and is
// renamed into place.
func (fs *FileStore) Put(key string, value []byte) error {
	finalFile := fs.path(key)
	tmpFile := finalFile + ".tmp"

	if err := os.WriteFile(tmpFile, value, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Put",
		"key":      key,
		"bytes":    len(value),
	}).Debug("Persisted record")

	return nil
}

// Delete implements Store.
func (fs *FileStore) Delete(key string) error {
	err := os.Remove(fs.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Keys implements Store.
func (fs *FileStore) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		decoded, err := hex.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			// Foreign file in the store directory; not ours to report.
			continue
		}
		key := string(decoded)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
