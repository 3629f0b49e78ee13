package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Rotation is the retention policy of a FileRotator.
type Rotation struct {
	// Path of the live file. Rotated files sit next to it as
	// <name>-<timestamp><ext>[.gz].
	Path string

	// MaxBytes triggers rotation when a write would grow the file past it.
	// Zero disables size rotation.
	MaxBytes int64

	// MaxBackups caps the number of rotated files kept. Zero keeps all.
	MaxBackups int

	// MaxAge deletes rotated files older than this. Zero keeps all.
	MaxAge time.Duration

	// Compress gzips rotated files.
	Compress bool
}

// FileRotator is an io.Writer over a file that rotates by size and by day.
type FileRotator struct {
	policy   Rotation
	mu       sync.Mutex
	file     *os.File
	size     int64
	openedAt time.Time
	now      func() time.Time
}

// NewFileRotator opens (or creates) policy.Path for appending.
func NewFileRotator(policy Rotation) (*FileRotator, error) {
	if policy.Path == "" {
		return nil, errors.New("rotator: empty log path")
	}

	r := &FileRotator{policy: policy, now: time.Now}
	if err := os.MkdirAll(filepath.Dir(policy.Path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.policy.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	r.openedAt = r.now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.shouldRotate(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) shouldRotate(writeSize int64) bool {
	if r.size == 0 {
		return false
	}
	if r.policy.MaxBytes > 0 && r.size+writeSize > r.policy.MaxBytes {
		return true
	}
	y1, m1, d1 := r.openedAt.Date()
	y2, m2, d2 := r.now().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Rotate forces a rotation of the live file.
func (r *FileRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	name, ext := r.nameParts()
	stamp := r.now().Format("20060102-150405.000")
	rotated := filepath.Join(filepath.Dir(r.policy.Path), fmt.Sprintf("%s-%s%s", name, stamp, ext))

	if err := os.Rename(r.policy.Path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if r.policy.Compress {
		if err := compressFile(rotated); err != nil {
			return err
		}
	}

	if err := r.openFile(); err != nil {
		return err
	}
	r.cleanup()
	return nil
}

func (r *FileRotator) nameParts() (string, string) {
	base := filepath.Base(r.policy.Path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

func compressFile(path string) error {
	input, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rotated log: %w", err)
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return fmt.Errorf("create compressed log: %w", err)
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)

	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return fmt.Errorf("compress log: %w", err)
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return fmt.Errorf("compress log: %w", err)
	}

	return os.Remove(path)
}

// Backups lists rotated files, oldest first.
func (r *FileRotator) Backups() ([]string, error) {
	name, ext := r.nameParts()
	pattern := filepath.Join(filepath.Dir(r.policy.Path), name+"-*"+ext+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: m, modTime: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].path < backups[j].path
		}
		return backups[i].modTime.Before(backups[j].modTime)
	})

	paths := make([]string, len(backups))
	for i, b := range backups {
		paths[i] = b.path
	}
	return paths, nil
}

// cleanup applies MaxBackups and MaxAge to the rotated files.
func (r *FileRotator) cleanup() {
	backups, err := r.Backups()
	if err != nil {
		return
	}

	if r.policy.MaxBackups > 0 && len(backups) > r.policy.MaxBackups {
		excess := len(backups) - r.policy.MaxBackups
		for _, p := range backups[:excess] {
			os.Remove(p)
		}
		backups = backups[excess:]
	}

	if r.policy.MaxAge <= 0 {
		return
	}
	cutoff := r.now().Add(-r.policy.MaxAge)
	for _, p := range backups {
		if info, err := os.Stat(p); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(p)
		}
	}
}

// Close closes the live file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes the live file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}
