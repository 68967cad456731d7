package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileStore reads settings from a YAML mapping and reloads it when the file
// changes on disk.
type FileStore struct {
	path   string
	logger *slog.Logger
	val    atomic.Value // Map
}

// NewFileStore loads settings from path.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements Store.
func (s *FileStore) Get(name, def string) string {
	return s.current().Get(name, def)
}

func (s *FileStore) current() Map {
	if v := s.val.Load(); v != nil {
		return v.(Map)
	}
	return Map{}
}

func (s *FileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	m, err := Parse(b)
	if err != nil {
		return err
	}
	s.val.Store(m)
	return nil
}

// Parse decodes a YAML mapping into a Map. Scalars of any type are kept in
// their textual form.
func Parse(b []byte) (Map, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	m := make(Map, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case nil:
			m[k] = ""
		case bool:
			if tv {
				m[k] = "1"
			} else {
				m[k] = "0"
			}
		default:
			m[k] = fmt.Sprint(tv)
		}
	}
	return m, nil
}

// Watch reloads the file whenever it is written or recreated until ctx ends.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case ev := <-watcher.Events:
				if filepath.Clean(ev.Name) == filepath.Clean(s.path) && (ev.Op&(fsnotify.Write|fsnotify.Create)) != 0 {
					if err := s.load(); err != nil {
						s.logger.Warn("reload settings", "path", s.path, "err", err)
					} else {
						s.logger.Info("settings reloaded", "path", s.path)
					}
				}
			case err := <-watcher.Errors:
				if err != nil {
					s.logger.Warn("settings watch error", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
