package bot

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailored-agentic-units/exchange/core/protocol"
)

// Entry is one prompt file. Keys are /-separated paths relative to the store
// root.
type Entry struct {
	Key   string
	Value []byte
}

// Store reads prompt entries from external storage.
type Store interface {
	// List returns all available keys in the store.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
}

type fileStore struct {
	root string
}

// NewFileStore creates a Store backed by the filesystem. Keys map 1:1 to
// relative file paths under root. Dotfiles and dot-directories are skipped.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) List(_ context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipAll
			}
			return err
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) Load(_ context.Context, keys ...string) ([]Entry, error) {
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		path := filepath.Join(s.root, filepath.FromSlash(key))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
		}
		entries = append(entries, Entry{Key: key, Value: data})
	}
	return entries, nil
}

// LoadPrompts reads every entry in store as a system context prompt, in key
// order. Blank files are skipped.
func LoadPrompts(ctx context.Context, store Store) ([]protocol.Message, error) {
	keys, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	entries, err := store.Load(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt entries: %w", err)
	}

	prompts := make([]protocol.Message, 0, len(entries))
	for _, entry := range entries {
		text := strings.TrimSpace(string(entry.Value))
		if text == "" {
			continue
		}
		prompts = append(prompts, protocol.NewMessage(protocol.RoleSystem, text))
	}
	return prompts, nil
}
