package vulkan

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/kiln-engine/kiln/engine/core"
)

// ShaderWatcher watches SPIR-V files on disk and reports which materials
// reference a file that changed. Recompilation is the caller's job; a
// material whose ID arrives on Dirty should be rebuilt at a safe point in
// the frame loop.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	byPath map[string][]uuid.UUID
	closed bool

	dirty chan uuid.UUID
	done  chan struct{}
}

func NewShaderWatcher() (*ShaderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	sw := &ShaderWatcher{
		watcher: watcher,
		byPath:  make(map[string][]uuid.UUID),
		dirty:   make(chan uuid.UUID, 16),
		done:    make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

// WatchMaterial registers both of the material's shader files.
func (sw *ShaderWatcher) WatchMaterial(m *Material) error {
	paths := m.CreateInfo().Shaders
	for _, path := range []string{paths.Vertex, paths.Fragment} {
		sw.mu.Lock()
		_, known := sw.byPath[path]
		sw.byPath[path] = append(sw.byPath[path], m.ID)
		sw.mu.Unlock()

		if !known {
			if err := sw.watcher.Add(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnwatchMaterial drops a material's registration, typically after the
// material was rebuilt and replaced. Paths no other material references
// stop being watched.
func (sw *ShaderWatcher) UnwatchMaterial(id uuid.UUID) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	for path, ids := range sw.byPath {
		kept := ids[:0]
		for _, known := range ids {
			if known != id {
				kept = append(kept, known)
			}
		}
		if len(kept) == 0 {
			delete(sw.byPath, path)
			if err := sw.watcher.Remove(path); err != nil {
				core.LogWarn("failed to unwatch '%s': %s", path, err)
			}
			continue
		}
		sw.byPath[path] = kept
	}
}

// Dirty delivers the IDs of materials whose shader files changed on disk.
func (sw *ShaderWatcher) Dirty() <-chan uuid.UUID {
	return sw.dirty
}

func (sw *ShaderWatcher) run() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			sw.mu.Lock()
			ids := append([]uuid.UUID(nil), sw.byPath[event.Name]...)
			sw.mu.Unlock()
			for _, id := range ids {
				select {
				case sw.dirty <- id:
				default:
					core.LogWarn("shader reload queue full, dropping update for material %s", id)
				}
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher error: %s", err)
		}
	}
}

func (sw *ShaderWatcher) Close() error {
	sw.mu.Lock()
	if sw.closed {
		sw.mu.Unlock()
		return nil
	}
	sw.closed = true
	sw.mu.Unlock()

	close(sw.done)
	return sw.watcher.Close()
}
