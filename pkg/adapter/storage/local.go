package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
)

// LocalClient keeps objects as files below a root directory. Object names use
// "/" as separator regardless of the platform.
type LocalClient struct {
	root string
}

var _ interfaces.StorageClient = &LocalClient{}

func NewLocalClient(root string) (*LocalClient, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve storage root", goerr.TV(errs.PathKey, root))
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, goerr.Wrap(err, "failed to create storage root", goerr.TV(errs.PathKey, abs))
	}
	return &LocalClient{root: abs}, nil
}

// Root returns the absolute directory objects are stored in
func (x *LocalClient) Root() string {
	return x.root
}

func (x *LocalClient) path(object string) string {
	return filepath.Join(x.root, filepath.FromSlash(filepath.Clean("/" + object)))
}

func (x *LocalClient) PutObject(ctx context.Context, object string) io.WriteCloser {
	return &localWriter{ctx: ctx, path: x.path(object)}
}

func (x *LocalClient) GetObject(ctx context.Context, object string) (io.ReadCloser, error) {
	f, err := os.Open(x.path(object))
	if err != nil {
		opts := []goerr.Option{goerr.V("object", object)}
		if errors.Is(err, fs.ErrNotExist) {
			opts = append(opts, goerr.T(errs.TagNotFound))
		}
		return nil, goerr.Wrap(err, "failed to open object", opts...)
	}
	return f, nil
}

func (x *LocalClient) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(x.path(prefix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, goerr.Wrap(err, "failed to list objects", goerr.V("prefix", prefix))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (x *LocalClient) Close(ctx context.Context) {}

// localWriter writes into a temporary file and renames it on Close so that
// readers never observe a partial object.
type localWriter struct {
	ctx  context.Context
	path string
	tmp  *os.File
	err  error
}

func (w *localWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.tmp == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0750); err != nil {
			w.err = goerr.Wrap(err, "failed to create object directory", goerr.TV(errs.PathKey, w.path))
			return 0, w.err
		}
		f, err := os.CreateTemp(filepath.Dir(w.path), ".tmp-*")
		if err != nil {
			w.err = goerr.Wrap(err, "failed to create temporary object", goerr.TV(errs.PathKey, w.path))
			return 0, w.err
		}
		w.tmp = f
	}
	return w.tmp.Write(p)
}

func (w *localWriter) Close() error {
	if w.err != nil {
		if w.tmp != nil {
			safe.Close(w.ctx, w.tmp)
			_ = os.Remove(w.tmp.Name())
		}
		return w.err
	}
	if w.tmp == nil {
		// empty object
		if _, err := w.Write(nil); err != nil {
			return err
		}
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return goerr.Wrap(err, "failed to close temporary object", goerr.TV(errs.PathKey, w.path))
	}
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		_ = os.Remove(w.tmp.Name())
		return goerr.Wrap(err, "failed to move object into place", goerr.TV(errs.PathKey, w.path))
	}
	return nil
}
