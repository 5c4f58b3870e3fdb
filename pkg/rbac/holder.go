package rbac

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/datarequests/pkg/observability"
)

// Holder serves the active policy and swaps it atomically on reload
type Holder struct {
	current atomic.Pointer[Policy]
	path    string
	logger  *observability.Logger
}

// NewHolder loads the policy at path, or the embedded default when path is empty
func NewHolder(path string, logger *observability.Logger) (*Holder, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	h := &Holder{path: path, logger: logger.WithField("component", "rbac")}

	if path == "" {
		h.current.Store(DefaultPolicy())
		return h, nil
	}

	p, err := LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	h.current.Store(p)
	return h, nil
}

// NewStaticHolder serves a fixed policy
func NewStaticHolder(p *Policy) *Holder {
	h := &Holder{logger: observability.NewNopLogger()}
	h.current.Store(p)
	return h
}

// Policy returns the active policy
func (h *Holder) Policy() *Policy {
	return h.current.Load()
}

// Reload re-reads the policy file. On failure the active policy is kept.
func (h *Holder) Reload() error {
	if h.path == "" {
		return nil
	}
	p, err := LoadPolicyFile(h.path)
	if err != nil {
		h.logger.WithError(err).Warn("Policy reload failed, keeping previous policy")
		return err
	}
	h.current.Store(p)
	h.logger.Infof("Policy reloaded from %s (%d rules)", h.path, len(p.rules))
	return nil
}

// Watch reloads the policy whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(h.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				_ = h.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.WithError(err).Warn("Policy watcher error")
		}
	}
}
