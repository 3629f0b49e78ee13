// Package watcher turns drop-folder activity into a stream of settled media
// files. A file is emitted once its size and modification time have held
// still for the debounce interval, and identical content is emitted only once.
package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay unchanged before it is emitted.
const DefaultDebounce = 2 * time.Second

// ignoredSuffixes mark partial uploads and editor scratch files.
var ignoredSuffixes = []string{".part", ".tmp", ".crdownload", ".download"}

// Event is a file that is ready for analysis.
type Event struct {
	Path    string
	Hash    [32]byte
	Size    int64
	ReadyAt time.Time
}

// SHA256 returns the content digest as lowercase hex.
func (e Event) SHA256() string {
	return hex.EncodeToString(e.Hash[:])
}

// Filter decides whether a path is worth tracking.
type Filter func(path string) bool

// pending is a file seen in an inbox that has not settled yet.
type pending struct {
	size    int64
	modTime time.Time
	changed time.Time
}

func (p pending) same(info fs.FileInfo) bool {
	return p.size == info.Size() && p.modTime.Equal(info.ModTime())
}

// Watcher monitors inbox directories for new media.
type Watcher struct {
	fsw      *fsnotify.Watcher
	paths    []string
	debounce time.Duration
	filter   Filter
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]pending
	emitted map[[32]byte]struct{}

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher over paths. A nil filter accepts every regular file
// that is not hidden or a partial upload.
func New(paths []string, debounce time.Duration, filter Filter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		paths:    paths,
		debounce: debounce,
		filter:   filter,
		now:      time.Now,
		pending:  make(map[string]pending),
		emitted:  make(map[[32]byte]struct{}),
		events:   make(chan Event, 100),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}, nil
}

// Events returns the channel of settled files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch and hashing errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Paths returns the configured inbox paths.
func (w *Watcher) Paths() []string {
	return w.paths
}

// Pending returns the number of files waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Start begins watching. Files already sitting in an inbox are picked up and
// emitted once they settle.
func (w *Watcher) Start() error {
	for _, p := range w.paths {
		if err := w.add(p); err != nil {
			return err
		}
	}

	w.wg.Add(2)
	go w.notifyLoop()
	go w.settleLoop()
	return nil
}

// Stop shuts the watcher down and closes the event and error channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

// add registers one inbox. A plain file is watched through its directory.
func (w *Watcher) add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
			return err
		}
		w.touch(abs)
		return nil
	}

	if err := w.fsw.Add(abs); err != nil {
		return err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.touch(filepath.Join(abs, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) accept(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return w.filter == nil || w.filter(path)
}

// touch records path as changed now, restarting its settle timer.
func (w *Watcher) touch(path string) {
	if !w.accept(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	w.mu.Lock()
	w.pending[path] = pending{size: info.Size(), modTime: info.ModTime(), changed: w.now()}
	w.mu.Unlock()
}

func (w *Watcher) drop(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func (w *Watcher) notifyLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				// Renames into the inbox arrive as Create.
				w.touch(ev.Name)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				w.drop(ev.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

// pollInterval checks twice per debounce window, within [10ms, 1s].
func pollInterval(debounce time.Duration) time.Duration {
	return min(max(debounce/2, 10*time.Millisecond), time.Second)
}

func (w *Watcher) settleLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(pollInterval(w.debounce))
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

type candidate struct {
	path string
	pending
}

// settled returns the files quiet for a full debounce window. A file whose
// size or mtime moved without an fsnotify event (a slow upload, a dropped
// event) has its timer restarted instead.
func (w *Watcher) settled(now time.Time) []candidate {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []candidate
	for path, p := range w.pending {
		if now.Sub(p.changed) < w.debounce {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if !p.same(info) {
			w.pending[path] = pending{size: info.Size(), modTime: info.ModTime(), changed: now}
			continue
		}
		out = append(out, candidate{path: path, pending: p})
	}
	return out
}

// flush hashes and emits settled files. Hashing runs without the lock so
// notifyLoop is never blocked behind a large video.
func (w *Watcher) flush(now time.Time) {
	for _, c := range w.settled(now) {
		hash, size, err := HashFile(c.path)
		if err != nil {
			w.drop(c.path)
			if !errors.Is(err, fs.ErrNotExist) {
				w.report(err)
			}
			continue
		}
		w.emit(c, hash, size, now)
	}
}

func (w *Watcher) emit(c candidate, hash [32]byte, size int64, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur, ok := w.pending[c.path]
	if !ok || !cur.changed.Equal(c.changed) || size != c.size {
		// Removed or rewritten while hashing.
		return
	}
	if _, dup := w.emitted[hash]; dup {
		delete(w.pending, c.path)
		return
	}

	select {
	case w.events <- Event{Path: c.path, Hash: hash, Size: size, ReadyAt: now}:
		delete(w.pending, c.path)
		w.emitted[hash] = struct{}{}
	default:
		// Consumer is behind; retry on the next tick.
	}
}

// HashFile streams a file through SHA-256, so large videos are never held in
// memory.
func HashFile(path string) (digest [32]byte, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return digest, 0, err
	}
	defer f.Close()

	h := sha256.New()
	if size, err = io.Copy(h, f); err != nil {
		return digest, 0, err
	}
	h.Sum(digest[:0])
	return digest, size, nil
}
