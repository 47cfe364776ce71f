package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/adapter/storage"
	server "github.com/secmon-lab/agentrun/pkg/controller/http"
	websocket_ctrl "github.com/secmon-lab/agentrun/pkg/controller/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/agent"
	artifact_svc "github.com/secmon-lab/agentrun/pkg/service/artifact"
	"github.com/secmon-lab/agentrun/pkg/service/chat"
	"github.com/secmon-lab/agentrun/pkg/usecase"
)

func setup(t *testing.T, steps []agent.Step, opts ...server.Options) (*httptest.Server, *storage.MemoryClient) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := storage.NewMemoryClient()
	script := agent.NewScript(client, func(string) []agent.Step { return steps })
	uc := usecase.New(interfaces.NewClients(
		interfaces.WithStorageClient(client),
		interfaces.WithAgent(script),
	), usecase.WithThrottle(time.Millisecond))
	t.Cleanup(func() { _ = uc.Close(context.Background()) })

	hub := websocket_ctrl.NewHub(ctx, uc)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Close() })

	opts = append(opts, server.WithWebSocketHandler(websocket_ctrl.NewHandler(uc, hub)))
	srv := httptest.NewServer(server.New(uc, opts...))
	t.Cleanup(srv.Close)
	return srv, client
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		gt.NoError(t, err).Required()
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, r)
	gt.NoError(t, err).Required()
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	gt.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	srv, _ := setup(t, nil)
	resp, body := do(t, http.MethodGet, srv.URL+"/health", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, string(body)).Contains(`"ok"`)
	gt.Equal(t, len(resp.Header.Get("X-Request-ID")), 36)
}

func TestRequestIDPropagation(t *testing.T) {
	srv, _ := setup(t, nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	gt.NoError(t, err).Required()
	req.Header.Set("X-Request-ID", "cli-run-1")

	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Equal(t, resp.Header.Get("X-Request-ID"), "cli-run-1")
}

func TestRunEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv, _ := setup(t, []agent.Step{{Line: "planning {prompt}"}, {Line: "done"}})
		resp, body := do(t, http.MethodPost, srv.URL+"/api/run", chat.RunRequest{Prompt: "a timer"})
		gt.Equal(t, resp.StatusCode, http.StatusOK)

		var result chat.RunResponse
		gt.NoError(t, json.Unmarshal(body, &result))
		gt.Equal(t, result.Status, "success")
		gt.Equal(t, result.Output, "planning a timer\ndone")
	})

	t.Run("empty prompt", func(t *testing.T) {
		srv, _ := setup(t, nil)
		resp, body := do(t, http.MethodPost, srv.URL+"/api/run", chat.RunRequest{Prompt: " "})
		gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
		gt.S(t, string(body)).Contains(`"error"`)
	})

	t.Run("input request", func(t *testing.T) {
		srv, _ := setup(t, []agent.Step{{Ask: "Which color?"}})
		resp, _ := do(t, http.MethodPost, srv.URL+"/api/run", chat.RunRequest{Prompt: "a button"})
		gt.Equal(t, resp.StatusCode, http.StatusConflict)
	})

	t.Run("broken body", func(t *testing.T) {
		srv, _ := setup(t, nil)
		resp, err := http.Post(srv.URL+"/api/run", "application/json", strings.NewReader("{"))
		gt.NoError(t, err).Required()
		defer resp.Body.Close()
		gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
	})
}

func TestRunEndpointWithClient(t *testing.T) {
	srv, _ := setup(t, []agent.Step{{Ask: "Which color?"}})
	_, err := chat.NewClient(srv.URL, nil).Run(context.Background(), "a button")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagInvalidState))
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	srv, client := setup(t, nil)

	for name, content := range map[string]string{
		"index.html": "<html></html>",
		"App.jsx":    "export default function App() {}",
		"report.pdf": "%PDF-1.4",
	} {
		w := client.PutObject(ctx, agent.WorkspacePrefix+name)
		_, err := w.Write([]byte(content))
		gt.NoError(t, err)
		gt.NoError(t, w.Close())
	}

	files, err := artifact_svc.New(srv.URL).ListFiles(ctx)
	gt.NoError(t, err)
	gt.Equal(t, files, []string{"App.jsx", "index.html", "report.pdf"})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/files/index.html", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, resp.Header.Get("Content-Type")).Contains("text/html")
	gt.Equal(t, string(body), "<html></html>")
	gt.Equal(t, resp.Header.Get("Content-Disposition"), "")

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/files/report.pdf", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, resp.Header.Get("Content-Disposition")).Contains("attachment")

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/files/missing.txt", nil)
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/files/..%2Fsecret", nil)
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestLogs(t *testing.T) {
	srv, _ := setup(t, []agent.Step{{Line: "hello"}})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/logs", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, strings.TrimSpace(string(body)), `{"logs":[]}`)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/run", chat.RunRequest{Prompt: "hi"})
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	logs, err := artifact_svc.New(srv.URL).FetchLogs(context.Background())
	gt.NoError(t, err)
	gt.A(t, logs).Length(3)
	gt.Equal(t, logs[1].Line, "hello")
}

func TestHistoryEndpoints(t *testing.T) {
	ctx := context.Background()
	srv, _ := setup(t, nil)
	base := srv.URL + "/api/history/alice"

	resp, body := do(t, http.MethodGet, base, nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, strings.TrimSpace(string(body)), "[]")

	sess := session.New(ctx, "")
	sess.AddMessage(ctx, types.RoleUser, "make a counter")

	resp, body = do(t, http.MethodPost, base+"/sessions", sess)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, string(body)).Contains(`"changed":true`)

	resp, body = do(t, http.MethodPost, base+"/sessions", sess)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, string(body)).Contains(`"changed":false`)

	resp, body = do(t, http.MethodGet, base, nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	catalog, err := session.DecodeCatalog(body)
	gt.NoError(t, err)
	gt.A(t, catalog).Length(1)
	gt.Equal(t, catalog[0].ID, sess.ID)

	resp, _ = do(t, http.MethodPut, base, session.Catalog{})
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)
	_, body = do(t, http.MethodGet, base, nil)
	gt.Equal(t, strings.TrimSpace(string(body)), "[]")

	resp, _ = do(t, http.MethodPost, base+"/sessions", map[string]string{"title": "no id"})
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/history/a%20b", nil)
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestPreferenceEndpoints(t *testing.T) {
	srv, _ := setup(t, nil)
	url := srv.URL + "/api/preferences/default/last_prompt"

	resp, body := do(t, http.MethodGet, url, nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	var pref server.PreferenceValue
	gt.NoError(t, json.Unmarshal(body, &pref))
	gt.False(t, pref.Exists)

	resp, _ = do(t, http.MethodPut, url, server.PreferenceValue{Value: "a counter"})
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)

	_, body = do(t, http.MethodGet, url, nil)
	gt.NoError(t, json.Unmarshal(body, &pref))
	gt.True(t, pref.Exists)
	gt.Equal(t, pref.Value, "a counter")
}

func TestWebSocketThroughMiddleware(t *testing.T) {
	srv, _ := setup(t, []agent.Step{{Line: "working on {prompt}"}})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/run", nil)
	gt.NoError(t, err).Required()
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("a clock")))

	var frames []string
	for {
		_, data, err := conn.ReadMessage()
		gt.NoError(t, err).Required()
		frames = append(frames, string(data))
		if string(data) == wsmodel.DoneSentinel {
			break
		}
	}
	gt.Equal(t, frames, []string{"working on a clock", wsmodel.DoneSentinel})
}

func TestCORS(t *testing.T) {
	srv, _ := setup(t, nil, server.WithAllowedOrigins([]string{"http://localhost:3000"}))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/run", nil)
	gt.NoError(t, err).Required()
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusNoContent)
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://localhost:3000")

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	gt.NoError(t, err).Required()
	req.Header.Set("Origin", "http://evil.example.com")
	resp2, err := http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	defer resp2.Body.Close()
	gt.Equal(t, resp2.Header.Get("Access-Control-Allow-Origin"), "")
}

func TestCheckOrigin(t *testing.T) {
	check := server.CheckOrigin([]string{"http://localhost:3000"})

	r := httptest.NewRequest(http.MethodGet, "/ws/run", nil)
	gt.True(t, check(r))

	r.Header.Set("Origin", "http://localhost:3000")
	gt.True(t, check(r))

	r.Header.Set("Origin", "http://evil.example.com")
	gt.False(t, check(r))

	gt.True(t, server.CheckOrigin(nil)(r))
}

func TestPreviewEndpoint(t *testing.T) {
	ctx := context.Background()
	srv, client := setup(t, nil)

	for name, content := range map[string]string{
		"Counter.jsx": "import React, { useState } from 'react';\nexport default function Counter() { return null; }\n",
		"styles.css":  "body { margin: 0; }",
		"notes.md":    "# notes",
	} {
		w := client.PutObject(ctx, agent.WorkspacePrefix+name)
		_, err := w.Write([]byte(content))
		gt.NoError(t, err)
		gt.NoError(t, w.Close())
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/api/preview/Counter.jsx", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, resp.Header.Get("Content-Type")).Contains("text/html")
	gt.S(t, string(body)).
		Contains("React.createElement(Counter)").
		Contains("body { margin: 0; }").
		NotContains("from 'react'")

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/preview/notes.md", nil)
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/preview/Missing.jsx", nil)
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestStaticFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":    {Data: []byte("<html>app</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	}
	srv, _ := setup(t, nil, server.WithStaticFS(fsys))

	resp, body := do(t, http.MethodGet, srv.URL+"/", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, string(body), "<html>app</html>")

	// client side routes fall back to index.html
	resp, body = do(t, http.MethodGet, srv.URL+"/sessions/abc", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, string(body), "<html>app</html>")

	resp, body = do(t, http.MethodGet, srv.URL+"/assets/app.js", nil)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, string(body), "console.log(1)")
	gt.S(t, resp.Header.Get("Cache-Control")).Contains("immutable")

	resp, _ = do(t, http.MethodGet, srv.URL+"/assets/missing.js", nil)
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)
}
