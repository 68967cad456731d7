// Package pluginloader loads Go plugins that add form element types and
// hook subscribers.
package pluginloader

import (
	"errors"
	"os"
	"path/filepath"
	"plugin"
	"runtime"

	"go.uber.org/zap"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/hooks"
)

// Plugin is returned by the New symbol of a plugin file.
type Plugin interface {
	Name() string
	Setup(h *Host) error
}

// Host is what a plugin may extend.
type Host struct {
	Renderer *formelement.Renderer
	Hooks    *hooks.Set
}

// RegisterType adds a custom form element type with its storage behavior
// and markup.
func (h *Host) RegisterType(t fielddef.Type, b fielddef.Behavior, e formelement.Element) error {
	if err := fielddef.RegisterType(t, b); err != nil {
		return err
	}
	if h.Renderer != nil {
		h.Renderer.Register(t, e)
	}
	return nil
}

// On subscribes fn to the named hook.
func (h *Host) On(name string, fn hooks.Func) {
	h.Hooks.On(name, fn)
}

// DefaultDir returns the path where plugins are stored for the current OS.
func DefaultDir() string {
	if runtime.GOOS == "windows" {
		dir := os.Getenv("APPDATA")
		if dir == "" {
			if h, err := os.UserHomeDir(); err == nil {
				dir = filepath.Join(h, "AppData", "Roaming")
			}
		}
		return filepath.Join(dir, "gpdb", "plugins")
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".gpdb", "plugins")
	}
	return "./plugins"
}

// Install sets p up on host. A type registered twice is skipped with a
// warning so reloading the same plugins is harmless.
func Install(p Plugin, host *Host, logger *zap.SugaredLogger) error {
	if err := p.Setup(host); err != nil {
		if errors.Is(err, fielddef.ErrTypeExists) {
			logger.Warnw("field type already registered", "plugin", p.Name())
			return nil
		}
		return err
	}
	logger.Infow("plugin loaded", "name", p.Name())
	return nil
}

// LoadAll loads every *.so file in dir and returns how many were installed.
// If dir is empty, DefaultDir() is used. Files that fail to open are
// skipped; a failing Setup aborts.
func LoadAll(dir string, host *Host, logger *zap.SugaredLogger) (int, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		logger.Warnw("failed to read plugin directory", "dir", dir, "err", err)
	}
	n := 0
	for _, f := range files {
		p, err := plugin.Open(f)
		if err != nil {
			logger.Warnw("plugin open failed", "file", f, "err", err)
			continue
		}
		sym, err := p.Lookup("New")
		if err != nil {
			logger.Warnw("symbol missing", "file", f, "err", err)
			continue
		}
		ctor, ok := sym.(func() Plugin)
		if !ok {
			logger.Warnw("invalid type", "file", f)
			continue
		}
		if err := Install(ctor(), host, logger); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
