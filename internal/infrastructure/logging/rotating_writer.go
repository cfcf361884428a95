package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const defaultMaxSizeMB = 100

// RotatingWriter is an append-only log file capped at a byte limit. When a
// write would cross the limit, panel.log becomes panel.1.log, panel.1.log
// becomes panel.2.log and so on, keeping at most maxBackups old files.
type RotatingWriter struct {
	mu sync.Mutex

	path       string
	limit      int64
	maxBackups int

	f       *os.File
	written int64
}

func NewRotatingWriter(path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("logging: empty log file path")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	w := &RotatingWriter{path: path, limit: int64(maxSizeMB) << 20, maxBackups: maxBackups}
	if err := w.reopen(false); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.f == nil:
		if err := w.reopen(false); err != nil {
			return 0, err
		}
	case w.written > 0 && w.written+int64(len(p)) > w.limit:
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f, w.written = nil, 0
	return err
}

func (w *RotatingWriter) reopen(truncate bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(w.path, flags, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.f, w.written = f, info.Size()
	return nil
}

func (w *RotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	w.f = nil
	if w.maxBackups > 0 {
		_ = os.Remove(w.backup(w.maxBackups))
		for n := w.maxBackups - 1; n > 0; n-- {
			_ = os.Rename(w.backup(n), w.backup(n+1))
		}
		_ = os.Rename(w.path, w.backup(1))
	}
	return w.reopen(true)
}

func (w *RotatingWriter) backup(n int) string {
	ext := filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext) + "." + strconv.Itoa(n) + ext
}
