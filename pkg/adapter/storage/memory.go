package storage

import (
	"bytes"
	"context"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
)

// MemoryClient keeps objects in process. The server falls back to it when no
// storage is configured, so generated files vanish on restart.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ interfaces.StorageClient = &MemoryClient{}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: map[string][]byte{}}
}

// PutObject buffers writes and publishes the object on Close, so readers
// never see a half written artifact.
func (m *MemoryClient) PutObject(_ context.Context, object string) io.WriteCloser {
	return &memoryWriter{commit: func(data []byte) {
		m.mu.Lock()
		m.objects[object] = data
		m.mu.Unlock()
	}}
}

func (m *MemoryClient) GetObject(_ context.Context, object string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[object]
	m.mu.RUnlock()

	if !ok {
		return nil, goerr.New("object not found", goerr.V("object", object), goerr.T(errs.TagNotFound))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ListObjects returns direct children of prefix only
func (m *MemoryClient) ListObjects(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	keys := slices.Collect(maps.Keys(m.objects))
	m.mu.RUnlock()

	names := []string{}
	for _, key := range keys {
		name, ok := strings.CutPrefix(key, prefix)
		if ok && name != "" && !strings.Contains(name, "/") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryClient) Close(context.Context) {}

type memoryWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	commit func([]byte)
	done   bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return 0, goerr.New("object is already committed")
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		w.done = true
		w.commit(bytes.Clone(w.buf.Bytes()))
	}
	return nil
}
