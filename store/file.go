package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/persist"
)

type indexData struct {
	Items []Record `json:"items"`
}

// FileStore persists the agenda to a JSON file with flock-based
// inter-process safety. Other processes (the mcp command, a second server)
// may write the same file; StartWatching picks those writes up.
type FileStore struct {
	dataDir   string
	mu        sync.RWMutex
	records   []Record
	listeners []OnChangeListener
	now       func() time.Time

	// writeGen is incremented on every in-process write. reloadFromDisk uses
	// it to skip stale fsnotify-triggered reloads.
	writeGen atomic.Int64

	watcher    *fsnotify.Watcher
	debounce   *time.Timer
	debounceMu sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "agenda"), 0755); err != nil {
		return nil, err
	}

	s := &FileStore{dataDir: dataDir, now: time.Now}

	idx, err := s.readIndexFromDisk()
	if err != nil {
		return nil, err
	}
	s.records = idx.Items
	return s, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dataDir, "agenda", "index.json")
}

// --- Read operations ---

func (s *FileStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

func (s *FileStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.findIndex(id); i >= 0 {
		return s.records[i].Clone(), true, nil
	}
	return Record{}, false, nil
}

// --- Write operations ---

func (s *FileStore) PatchSegments(_ context.Context, itemID string, p persist.Patch) error {
	if err := persist.Validate(p); err != nil {
		return err
	}

	s.mu.Lock()

	i := s.findIndex(itemID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	prev := s.records[i]
	if p.Version == prev.Version && agenda.SegmentsEqual(p.Segments, prev.TimeSegments) && (p.Status == "" || p.Status == prev.Status) {
		s.mu.Unlock()
		return nil
	}

	updated, err := applyPatch(prev, p, s.now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.records[i] = updated

	if err := s.persistIndex(); err != nil {
		s.records[i] = prev
		s.mu.Unlock()
		return err
	}

	listeners := s.copyListeners()
	s.mu.Unlock()

	notify(listeners, ChangeEvent{Op: OperationUpdate, Record: updated.Clone()})
	return nil
}

func (s *FileStore) Replace(_ context.Context, items []agenda.Item) error {
	records, err := recordsFromItems(items, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.records
	s.records = records
	if err := s.persistIndex(); err != nil {
		s.records = prev
		s.mu.Unlock()
		return err
	}
	events := diffRecords(prev, records)
	listeners := s.copyListeners()
	s.mu.Unlock()

	notify(listeners, events...)
	return nil
}

// --- Listener management ---

func (s *FileStore) AddOnChangeListener(listener OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Caller must hold s.mu (read or write).
func (s *FileStore) copyListeners() []OnChangeListener {
	out := make([]OnChangeListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func (s *FileStore) snapshotLocked() []Record {
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// --- File I/O with flock ---
//
// A dedicated lock file (index.json.lock) is used for flock because the data
// file is replaced via rename, which changes its inode.

func (s *FileStore) lockPath() string {
	return s.indexPath() + ".lock"
}

func (s *FileStore) readIndexFromDisk() (indexData, error) {
	lockF, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return indexData{}, fmt.Errorf("open lock file: %w", err)
	}
	defer lockF.Close()

	if err := syscall.Flock(int(lockF.Fd()), syscall.LOCK_SH); err != nil {
		return indexData{}, fmt.Errorf("flock shared: %w", err)
	}
	defer syscall.Flock(int(lockF.Fd()), syscall.LOCK_UN)

	f, err := os.Open(s.indexPath())
	if os.IsNotExist(err) {
		return indexData{Items: []Record{}}, nil
	}
	if err != nil {
		return indexData{}, err
	}
	defer f.Close()

	var idx indexData
	if err := json.NewDecoder(f).Decode(&idx); err != nil {
		return indexData{}, err
	}
	if idx.Items == nil {
		idx.Items = []Record{}
	}
	for i := range idx.Items {
		if idx.Items[i].TimeSegments == nil {
			idx.Items[i].TimeSegments = []agenda.TimeRange{}
		}
	}
	return idx, nil
}

// persistIndex writes the index atomically using write-temp-fsync-rename.
// Caller must hold s.mu write lock.
func (s *FileStore) persistIndex() error {
	data, err := json.MarshalIndent(indexData{Items: s.records}, "", "  ")
	if err != nil {
		return err
	}

	lockF, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockF.Close()

	if err := syscall.Flock(int(lockF.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("flock exclusive: %w", err)
	}
	defer syscall.Flock(int(lockF.Fd()), syscall.LOCK_UN)

	path := s.indexPath()
	tmpPath := path + ".tmp"

	tmpF, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to index: %w", err)
	}

	s.writeGen.Add(1)
	return nil
}

// --- fsnotify: detect external changes ---

func (s *FileStore) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory; file-level watches don't survive renames.
	if err := watcher.Add(filepath.Dir(s.indexPath())); err != nil {
		watcher.Close()
		return err
	}

	go s.watchLoop()
	slog.Info("agenda store watching for external changes", "path", s.indexPath())
	return nil
}

func (s *FileStore) StopWatching() {
	s.debounceMu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceMu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *FileStore) Close() error {
	s.StopWatching()
	return nil
}

func (s *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "index.json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.scheduleReload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("agenda store fsnotify error", "error", err)
		}
	}
}

const reloadDebounce = 100 * time.Millisecond

func (s *FileStore) scheduleReload() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(reloadDebounce, s.reloadFromDisk)
}

func (s *FileStore) reloadFromDisk() {
	// If an in-process write lands between the disk read and the lock, the
	// generation differs and the reload is skipped; that write's own event
	// schedules a fresh one.
	genBefore := s.writeGen.Load()

	idx, err := s.readIndexFromDisk()
	if err != nil {
		slog.Error("failed to reload agenda index", "error", err)
		return
	}

	s.mu.Lock()
	if s.writeGen.Load() != genBefore {
		s.mu.Unlock()
		return
	}
	old := s.records
	s.records = idx.Items
	listeners := s.copyListeners()
	s.mu.Unlock()

	// Our own writes produce no diff; external ones do.
	notify(listeners, diffRecords(old, idx.Items)...)
}

// --- Helpers ---

func (s *FileStore) findIndex(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
