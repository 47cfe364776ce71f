// Package artifact retrieves the files and logs a run produced.
package artifact

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickmn/go-cache"
	"github.com/secmon-lab/agentrun/pkg/domain/model/artifact"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/request_id"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL = 10 * time.Minute
	// maxFileSize bounds the content read into memory for one file
	maxFileSize = 32 << 20
)

// Fetcher talks to the artifact endpoints of a run server. Fetched content is
// cached until Reset, which a new run calls. Failed fetches leave the file
// list and the current file untouched.
type Fetcher struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
	group   singleflight.Group

	mu      sync.RWMutex
	files   []string
	current *artifact.File
}

type Option func(*Fetcher)

func WithHTTPClient(client *http.Client) Option {
	return func(x *Fetcher) {
		x.client = client
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(x *Fetcher) {
		x.cache = cache.New(ttl, ttl*2)
	}
}

// New creates a fetcher for the server at baseURL, e.g. http://localhost:8000
func New(baseURL string, opts ...Option) *Fetcher {
	x := &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		cache:   cache.New(defaultCacheTTL, defaultCacheTTL*2),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// FileURL is the download URL of a file
func (x *Fetcher) FileURL(name string) string {
	return x.baseURL + "/api/files/" + url.PathEscape(name)
}

// Files returns the last successfully fetched listing
func (x *Fetcher) Files() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string{}, x.files...)
}

// Current returns the last successfully read file, or nil
func (x *Fetcher) Current() *artifact.File {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.current
}

// Reset drops the listing, the current selection and cached content
func (x *Fetcher) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.files = nil
	x.current = nil
	x.cache.Flush()
}

// ListFiles fetches the names of generated files in server order
func (x *Fetcher) ListFiles(ctx context.Context) ([]string, error) {
	var resp artifact.FileList
	if err := x.getJSON(ctx, "/api/files", &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to list files")
	}
	if resp.Files == nil {
		resp.Files = []string{}
	}

	x.mu.Lock()
	x.files = append([]string{}, resp.Files...)
	x.mu.Unlock()

	logging.From(ctx).Debug("fetched file list", "count", len(resp.Files))
	return resp.Files, nil
}

// ReadFile retrieves one file. Images are referenced by URL and not fetched;
// binary documents are kept as raw bytes and never decoded.
func (x *Fetcher) ReadFile(ctx context.Context, name string) (*artifact.File, error) {
	if !artifact.ValidName(name) {
		return nil, goerr.New("invalid file name", goerr.TV(errs.FileNameKey, name), goerr.T(errs.TagValidation))
	}

	file := &artifact.File{
		Name: name,
		Kind: artifact.Classify(name),
		URL:  x.FileURL(name),
	}

	if file.Kind != types.FileKindImage {
		data, err := x.content(ctx, name)
		if err != nil {
			return nil, err
		}
		switch file.Kind {
		case types.FileKindBinary:
			file.Data = data
		default:
			file.Text = string(data)
			file.URL = ""
		}
	}

	x.mu.Lock()
	x.current = file
	x.mu.Unlock()
	return file, nil
}

// Download returns the raw content of a file of any kind
func (x *Fetcher) Download(ctx context.Context, name string) ([]byte, error) {
	if !artifact.ValidName(name) {
		return nil, goerr.New("invalid file name", goerr.TV(errs.FileNameKey, name), goerr.T(errs.TagValidation))
	}
	return x.content(ctx, name)
}

func (x *Fetcher) content(ctx context.Context, name string) ([]byte, error) {
	if v, ok := x.cache.Get(name); ok {
		return v.([]byte), nil
	}

	v, err, _ := x.group.Do(name, func() (any, error) {
		data, err := x.get(ctx, "/api/files/"+url.PathEscape(name))
		if err != nil {
			return nil, err
		}
		x.cache.SetDefault(name, data)
		return data, nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.TV(errs.FileNameKey, name))
	}
	return v.([]byte), nil
}

// FetchLogs replays the log of the latest run
func (x *Fetcher) FetchLogs(ctx context.Context) ([]*session.TerminalLogEntry, error) {
	var resp artifact.LogList
	if err := x.getJSON(ctx, "/api/logs", &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch logs")
	}

	entries := make([]*session.TerminalLogEntry, 0, len(resp.Logs))
	for _, line := range resp.Logs {
		entries = append(entries, artifact.ParseLogLine(ctx, line))
	}
	return entries, nil
}

func (x *Fetcher) getJSON(ctx context.Context, path string, out any) error {
	data, err := x.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return goerr.Wrap(err, "failed to decode response",
			goerr.TV(errs.URLKey, x.baseURL+path),
			goerr.T(errs.TagExternal))
	}
	return nil
}

func (x *Fetcher) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := x.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.TV(errs.URLKey, endpoint))
	}
	if id := request_id.FromContext(ctx); id != "" {
		req.Header.Set(request_id.Header, id)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request",
			goerr.TV(errs.URLKey, endpoint),
			goerr.T(errs.TagExternal))
	}
	defer safe.Drain(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		tag := errs.TagExternal
		if resp.StatusCode == http.StatusNotFound {
			tag = errs.TagNotFound
		}
		return nil, goerr.New("unexpected response status",
			goerr.TV(errs.URLKey, endpoint),
			goerr.TV(errs.StatusKey, resp.StatusCode),
			goerr.V("body", string(body)),
			goerr.T(tag))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response",
			goerr.TV(errs.URLKey, endpoint),
			goerr.T(errs.TagExternal))
	}
	if len(data) > maxFileSize {
		return nil, goerr.New("response is too large",
			goerr.TV(errs.URLKey, endpoint),
			goerr.T(errs.TagExternal))
	}
	return data, nil
}
