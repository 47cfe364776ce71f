package artifact_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/artifact"
)

type fakeServer struct {
	mu       sync.Mutex
	files    map[string]string
	logs     []string
	broken   bool
	fileHits atomic.Int32
}

func (x *fakeServer) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/files", func(w http.ResponseWriter, r *http.Request) {
		x.mu.Lock()
		defer x.mu.Unlock()
		if x.broken {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		names := []string{}
		for _, n := range []string{"App.jsx", "index.html", "logo.png", "report.pdf"} {
			if _, ok := x.files[n]; ok {
				names = append(names, n)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": names})
	})
	r.Get("/api/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		x.fileHits.Add(1)
		x.mu.Lock()
		defer x.mu.Unlock()
		if x.broken {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		data, ok := x.files[chi.URLParam(r, "name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(data))
	})
	r.Get("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"logs": x.logs})
	})
	return r
}

func (x *fakeServer) setBroken(v bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.broken = v
}

func setup(t *testing.T) (*fakeServer, *artifact.Fetcher) {
	fake := &fakeServer{
		files: map[string]string{
			"index.html": "<h1>hello</h1>",
			"App.jsx":    "export default function App() { return <div/> }",
			"logo.png":   "\x89PNG",
			"report.pdf": "%PDF-1.4 \xff\xfe",
		},
		logs: []string{
			"2024-05-31 12:00:00.000 | INFO     | ✨ thoughts: planning",
			"raw line without shape",
		},
	}
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)
	return fake, artifact.New(srv.URL + "/")
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	fake, fetcher := setup(t)

	files, err := fetcher.ListFiles(ctx)
	gt.NoError(t, err)
	gt.Equal(t, files, []string{"App.jsx", "index.html", "logo.png", "report.pdf"})
	gt.Equal(t, fetcher.Files(), files)

	t.Run("failure keeps previous listing", func(t *testing.T) {
		fake.setBroken(true)
		defer fake.setBroken(false)

		_, err := fetcher.ListFiles(ctx)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagExternal))
		gt.A(t, fetcher.Files()).Length(4)
	})
}

func TestReadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("text file", func(t *testing.T) {
		_, fetcher := setup(t)
		file, err := fetcher.ReadFile(ctx, "index.html")
		gt.NoError(t, err)
		gt.Equal(t, file.Kind, types.FileKindText)
		gt.Equal(t, file.Text, "<h1>hello</h1>")
		gt.Equal(t, fetcher.Current(), file)
	})

	t.Run("react source", func(t *testing.T) {
		_, fetcher := setup(t)
		file, err := fetcher.ReadFile(ctx, "App.jsx")
		gt.NoError(t, err)
		gt.Equal(t, file.Kind, types.FileKindReact)
		gt.S(t, file.Text).Contains("function App")
	})

	t.Run("image is referenced by URL", func(t *testing.T) {
		fake, fetcher := setup(t)
		file, err := fetcher.ReadFile(ctx, "logo.png")
		gt.NoError(t, err)
		gt.Equal(t, file.Kind, types.FileKindImage)
		gt.S(t, file.URL).Contains("/api/files/logo.png")
		gt.Equal(t, file.Text, "")
		gt.Equal(t, fake.fileHits.Load(), int32(0))
	})

	t.Run("binary document is not decoded", func(t *testing.T) {
		_, fetcher := setup(t)
		file, err := fetcher.ReadFile(ctx, "report.pdf")
		gt.NoError(t, err)
		gt.Equal(t, file.Kind, types.FileKindBinary)
		gt.Equal(t, file.Text, "")
		gt.Equal(t, string(file.Data), "%PDF-1.4 \xff\xfe")
		gt.S(t, file.URL).Contains("report.pdf")
	})

	t.Run("content is cached until reset", func(t *testing.T) {
		fake, fetcher := setup(t)
		_, err := fetcher.ReadFile(ctx, "index.html")
		gt.NoError(t, err)
		_, err = fetcher.ReadFile(ctx, "index.html")
		gt.NoError(t, err)
		gt.Equal(t, fake.fileHits.Load(), int32(1))

		fetcher.Reset()
		gt.Nil(t, fetcher.Current())
		gt.A(t, fetcher.Files()).Length(0)

		_, err = fetcher.ReadFile(ctx, "index.html")
		gt.NoError(t, err)
		gt.Equal(t, fake.fileHits.Load(), int32(2))
	})

	t.Run("failure keeps current file", func(t *testing.T) {
		fake, fetcher := setup(t)
		prev, err := fetcher.ReadFile(ctx, "index.html")
		gt.NoError(t, err)

		_, err = fetcher.ReadFile(ctx, "missing.txt")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagNotFound))
		gt.Equal(t, fetcher.Current(), prev)

		fake.setBroken(true)
		_, err = fetcher.ReadFile(ctx, "App.jsx")
		gt.Error(t, err)
		gt.Equal(t, fetcher.Current(), prev)
	})

	t.Run("invalid name is rejected before any request", func(t *testing.T) {
		fake, fetcher := setup(t)
		_, err := fetcher.ReadFile(ctx, "../etc/passwd")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagValidation))
		gt.Equal(t, fake.fileHits.Load(), int32(0))
	})
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	fake, fetcher := setup(t)

	data, err := fetcher.Download(ctx, "logo.png")
	gt.NoError(t, err)
	gt.True(t, len(data) > 0)
	gt.Equal(t, fake.fileHits.Load(), int32(1))
	gt.Nil(t, fetcher.Current())

	_, err = fetcher.Download(ctx, "a/b.txt")
	gt.True(t, goerr.HasTag(err, errs.TagValidation))
}

func TestFetchLogs(t *testing.T) {
	_, fetcher := setup(t)
	entries, err := fetcher.FetchLogs(context.Background())
	gt.NoError(t, err)
	gt.A(t, entries).Length(2)
	gt.Equal(t, entries[0].Line, "✨ thoughts: planning")
	gt.Equal(t, entries[0].Level, types.LevelInfo)
	gt.Equal(t, entries[1].Line, "raw line without shape")
}
