// Package follow reads a file that is still being written, such as a stream
// capture, blocking at end of file until more bytes arrive.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval bounds how long a Read waits when a write event is missed.
const pollInterval = 500 * time.Millisecond

// Reader is an io.Reader over a growing file. Read never returns io.EOF:
// it waits for the file to grow and returns the context error once ctx is
// done.
type Reader struct {
	ctx     context.Context
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
}

// Open opens path for following from its first byte.
func Open(ctx context.Context, path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening followed file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		_ = file.Close()
		return nil, fmt.Errorf("watching file dir: %w", err)
	}

	return &Reader{
		ctx:     ctx,
		path:    filepath.Clean(path),
		file:    file,
		watcher: watcher,
	}, nil
}

// Read reads available bytes, or blocks until the file is written to.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		n, err := r.file.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		if err := r.wait(ticker.C); err != nil {
			return 0, err
		}
	}
}

// wait returns once the file may have grown.
func (r *Reader) wait(tick <-chan time.Time) error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case <-tick:
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			return nil
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			return fmt.Errorf("file watcher error: %w", err)
		}
	}
}

// Close stops watching and closes the file.
func (r *Reader) Close() error {
	return errors.Join(r.watcher.Close(), r.file.Close())
}
