// Package file stores catalogs as JSON files in a directory. Other processes
// writing the same directory are observed through fsnotify.
package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// debounce collapses the event burst of one atomic replace
const debounce = 50 * time.Millisecond

type File struct {
	dir string
}

var (
	_ interfaces.CatalogStorage = &File{}
	_ interfaces.CatalogWatcher = &File{}
)

func New(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, goerr.Wrap(err, "failed to create catalog directory",
			goerr.TV(errs.PathKey, dir),
			goerr.T(errs.TagDatabase))
	}
	return &File{dir: dir}, nil
}

func (r *File) path(key string) string {
	return filepath.Join(r.dir, key+".json")
}

func (r *File) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(r.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read catalog file",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	return data, nil
}

// Put replaces the file atomically: readers see either the old or the new catalog.
func (r *File) Put(ctx context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(r.dir, ".tmp-"+key+"-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary catalog file",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "failed to write catalog file",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close catalog file",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	if err := os.Rename(tmp.Name(), r.path(key)); err != nil {
		return goerr.Wrap(err, "failed to replace catalog file",
			goerr.TV(errs.KeyKey, key),
			goerr.T(errs.TagDatabase))
	}
	return nil
}

// Watch reports every change of the key's file, including the ones made by
// this process.
func (r *File) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create file watcher")
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return nil, goerr.Wrap(err, "failed to watch catalog directory", goerr.TV(errs.PathKey, r.dir))
	}

	target := filepath.Base(r.path(key))
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer func() {
			_ = watcher.Close()
		}()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C

			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.From(ctx).Warn("catalog watcher error", "error", err, "dir", r.dir)
			}
		}
	}()

	return out, nil
}

func (r *File) Close() error {
	return nil
}
