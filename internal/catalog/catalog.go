// Package catalog loads the widgets an operator declares up front and keeps
// them registered in the aggregate store while the file changes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"livex/internal/domain/widget"
	"livex/internal/services"
	livex_errors "livex/pkg/errors"
	"livex/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type Entry struct {
	ID           string `yaml:"id"`
	Currency     string `yaml:"currency"`
	InitialCents int64  `yaml:"initial_cents"`
}

type Catalog struct {
	Widgets []Entry `yaml:"widgets"`
}

// Creator registers a widget; it is satisfied by services.WidgetService.
type Creator interface {
	Create(ctx context.Context, req services.CreateWidgetRequest) (widget.Aggregate, error)
}

// Loader reads a YAML catalog and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Catalog
	onChange []func(*Catalog)
	logger   *logger.Logger
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, l *logger.Logger) (*Loader, error) {
	if l == nil {
		l = logger.NewNop()
	}
	ld := &Loader{path: path, logger: l.Named("catalog")}
	cat, err := ld.load()
	if err != nil {
		return nil, err
	}
	ld.current = cat
	return ld, nil
}

func (l *Loader) Catalog() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func(*Catalog)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch hot-reloads the catalog on file changes until stop is called.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("catalog watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warnf("keeping previous widget catalog: %v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warnf("catalog watcher: %v", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the catalog file.
func (l *Loader) Reload() (*Catalog, error) {
	cat, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cat
	callbacks := make([]func(*Catalog), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cat)
	}
	return cat, nil
}

func (l *Loader) load() (*Catalog, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", l.path, err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", l.path, err)
	}
	seen := make(map[string]struct{}, len(cat.Widgets))
	for i, e := range cat.Widgets {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("catalog %s: entry %d has no id", l.path, i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate widget %q", l.path, e.ID)
		}
		seen[e.ID] = struct{}{}
		cat.Widgets[i] = e
	}
	return &cat, nil
}

// Apply creates every widget of cat. Widgets that already exist are left
// alone; a currency mismatch is logged and skipped. It returns the number of
// entries that failed.
func Apply(ctx context.Context, creator Creator, cat *Catalog, l *logger.Logger) int {
	if l == nil {
		l = logger.NewNop()
	}
	failed := 0
	for _, e := range cat.Widgets {
		_, err := creator.Create(ctx, services.CreateWidgetRequest{
			WidgetID:     e.ID,
			Currency:     e.Currency,
			InitialCents: e.InitialCents,
		})
		switch {
		case err == nil:
		case errors.Is(err, livex_errors.ErrConflict):
			failed++
			l.Warnf("widget %s already exists with another currency", e.ID)
		default:
			failed++
			l.Errorf("register widget %s: %v", e.ID, err)
		}
	}
	return failed
}
