package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrWatcherClosed is returned when Close is called twice.
var ErrWatcherClosed = errors.New("auth: key watcher already closed")

// KeyWatcher reloads an Extractor's keys when its JWKS file changes.
// It watches the parent directory so atomic writes (temp file + rename) and
// Kubernetes secret symlink swaps are seen, and debounces bursts of events.
type KeyWatcher struct {
	ctx           context.Context
	fsWatcher     *fsnotify.Watcher
	cancel        context.CancelFunc
	reload        func() error
	logger        *zerolog.Logger
	path          string
	debounceDelay time.Duration
	mu            sync.Mutex
	closed        bool
}

// KeyWatcherOption configures a KeyWatcher.
type KeyWatcherOption func(*KeyWatcher)

// WithDebounceDelay sets the debounce delay. Default is 100ms.
func WithDebounceDelay(d time.Duration) KeyWatcherOption {
	return func(w *KeyWatcher) {
		w.debounceDelay = d
	}
}

// NewKeyWatcher watches path and calls reload after it changes.
func NewKeyWatcher(path string, reload func() error, logger *zerolog.Logger, opts ...KeyWatcherOption) (*KeyWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &KeyWatcher{
		path:          absPath,
		fsWatcher:     fsWatcher,
		reload:        reload,
		logger:        logger,
		debounceDelay: 100 * time.Millisecond,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		if closeErr := fsWatcher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close key watcher after add failure")
		}
		return nil, err
	}

	return w, nil
}

// Path returns the absolute path being watched.
func (w *KeyWatcher) Path() string {
	return w.path
}

// Watch blocks until ctx is canceled or the watcher is closed.
func (w *KeyWatcher) Watch(ctx context.Context) error {
	var (
		timer  *time.Timer
		target = filepath.Base(w.path)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, target) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceDelay, w.fire)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("key watcher error")
		}
	}
}

// relevant ignores Chmod noise from indexers and events for sibling files.
// Mounted secrets swap a "..data" symlink, so any Create in the directory counts.
func relevant(event fsnotify.Event, target string) bool {
	name := filepath.Base(event.Name)
	if name == target {
		return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
	}
	return name == "..data" && event.Has(fsnotify.Create)
}

func (w *KeyWatcher) fire() {
	select {
	case <-w.ctx.Done():
		return
	default:
	}
	if err := w.reload(); err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("key file changed but reload failed")
		return
	}
	w.logger.Info().Str("path", w.path).Msg("key file reloaded")
}

// Close stops watching and releases resources.
func (w *KeyWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true
	w.cancel()
	return w.fsWatcher.Close()
}
