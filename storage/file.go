package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ Store = (*FileStore)(nil)

// FileStore persists keys as a single JSON document on disk, shared
// last-writer-wins between processes. Cross-process change notification
// rides on fsnotify: each external rewrite of the file is diffed
// against the last seen snapshot and changed keys are fanned out to
// subscribers.
type FileStore struct {
	path string

	mu       sync.Mutex
	snapshot map[string]string

	watcher *fsnotify.Watcher
	subs    subscribers
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileStore opens (or creates) the store file at path and starts
// watching it for writes from other processes.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		done: make(chan struct{}),
	}

	snapshot, err := readSnapshot(path)
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] readSnapshot")
	}
	fs.snapshot = snapshot

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] fsnotify.NewWatcher")
	}
	// Watch the directory, not the file: atomic rename-into-place
	// replaces the inode the file watch would be bound to.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrap(err, "[NewFileStore] watcher.Add")
	}
	fs.watcher = watcher

	fs.wg.Add(1)
	go fs.watch()
	return fs, nil
}

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.snapshot[key]
	return v, ok, nil
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	f.snapshot[key] = value
	err := f.writeLocked()
	f.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "[FileStore.Set] write")
	}
	f.subs.notify(key)
	return nil
}

func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	_, existed := f.snapshot[key]
	delete(f.snapshot, key)
	var err error
	if existed {
		err = f.writeLocked()
	}
	f.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "[FileStore.Delete] write")
	}
	if existed {
		f.subs.notify(key)
	}
	return nil
}

func (f *FileStore) Subscribe(fn func(key string)) func() {
	return f.subs.add(fn)
}

func (f *FileStore) Close() error {
	select {
	case <-f.done:
		return nil
	default:
	}
	close(f.done)
	err := f.watcher.Close()
	f.wg.Wait()
	return err
}

// writeLocked persists the snapshot with a temp-file-and-rename so
// other processes never observe a partially written document.
func (f *FileStore) writeLocked() error {
	data, err := json.MarshalIndent(f.snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.MarshalIndent")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "os.WriteFile")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "os.Rename")
	}
	return nil
}

func (f *FileStore) watch() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			f.reload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", f.path).Msg("file store watcher error")
		}
	}
}

// reload re-reads the file and notifies subscribers of every key whose
// value differs from the last seen snapshot. Local writes update the
// snapshot before the rename lands, so they diff to nothing here and
// are only announced once, synchronously from Set or Delete.
func (f *FileStore) reload() {
	current, err := readSnapshot(f.path)
	if err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("file store reload failed")
		return
	}

	f.mu.Lock()
	changed := diffKeys(f.snapshot, current)
	f.snapshot = current
	f.mu.Unlock()

	if len(changed) > 0 {
		f.subs.notify(changed...)
	}
}

func readSnapshot(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]string)
	if len(data) == 0 {
		return snapshot, nil
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func diffKeys(before, after map[string]string) []string {
	var changed []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed = append(changed, k)
		}
	}
	return changed
}
