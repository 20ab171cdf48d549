package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// File mirrors the local database file to a remote path, typically a
// mounted bucket or network share.
type File struct {
	local  string
	remote string
	logger *slog.Logger

	// beforeSync flushes pending writes into the local file.
	beforeSync func(ctx context.Context) error

	mu    sync.Mutex
	dirty bool
}

func NewFile(local, remote string, logger *slog.Logger) *File {
	return &File{
		local:  local,
		remote: remote,
		logger: logger.With("component", "mirror"),
	}
}

// EnsureLocal copies the remote snapshot into place when there is no
// local file yet. A missing remote is not an error; the database will be
// created from scratch.
func (f *File) EnsureLocal(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.local); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat local copy: %w", err)
	}

	if _, err := os.Stat(f.remote); errors.Is(err, fs.ErrNotExist) {
		f.logger.Info("no remote copy yet", "remote", f.remote)
		return nil
	}

	if err := copyFile(ctx, f.remote, f.local); err != nil {
		return fmt.Errorf("restore local copy: %w", err)
	}
	f.logger.Info("restored local copy", "remote", f.remote, "local", f.local)
	return nil
}

// OnBeforeSync registers fn to run ahead of every upload.
func (f *File) OnBeforeSync(fn func(ctx context.Context) error) {
	f.mu.Lock()
	f.beforeSync = fn
	f.mu.Unlock()
}

func (f *File) MarkDirty() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
}

// SyncIfNeeded uploads the local file when it changed since the last sync.
func (f *File) SyncIfNeeded(ctx context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return nil
	}

	if f.beforeSync != nil {
		if err := f.beforeSync(ctx); err != nil {
			return fmt.Errorf("prepare local copy: %w", err)
		}
	}

	if err := copyFile(ctx, f.local, f.remote); err != nil {
		return fmt.Errorf("upload local copy: %w", err)
	}
	f.dirty = false
	f.logger.Info("synced mirror", "remote", f.remote, "reason", reason)
	return nil
}

// copyFile writes src to a temporary file next to dst and renames it into
// place, so readers of dst never see a partial copy.
func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dst)
}

// Noop is used when there is nothing to mirror.
type Noop struct{}

func (Noop) EnsureLocal(context.Context) error { return nil }

func (Noop) MarkDirty() {}

func (Noop) SyncIfNeeded(context.Context, string) error { return nil }
