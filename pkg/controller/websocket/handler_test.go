package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/adapter/storage"
	websocket_ctrl "github.com/secmon-lab/agentrun/pkg/controller/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/agent"
	"github.com/secmon-lab/agentrun/pkg/service/stream"
	"github.com/secmon-lab/agentrun/pkg/usecase"
)

type testServer struct {
	uc  *usecase.UseCases
	hub *websocket_ctrl.Hub
	url string
}

func scripted(steps ...agent.Step) interfaces.Agent {
	return agent.NewScript(storage.NewMemoryClient(), func(string) []agent.Step { return steps })
}

type failingAgent struct{}

func (failingAgent) Start(ctx context.Context, prompt string) (interfaces.AgentRun, error) {
	lines := make(chan string, 1)
	lines <- "starting"
	close(lines)
	return &failedRun{lines: lines}, nil
}

type failedRun struct {
	lines chan string
}

func (x *failedRun) Lines() <-chan string { return x.lines }
func (x *failedRun) Answer(ctx context.Context, answer string) error { return nil }
func (x *failedRun) Wait() error { return errors.New("exit status 1") }

func newTestServer(t *testing.T, runner interfaces.Agent) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	uc := usecase.New(interfaces.NewClients(interfaces.WithAgent(runner)), usecase.WithThrottle(time.Millisecond))
	hub := websocket_ctrl.NewHub(ctx, uc)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Close() })

	h := websocket_ctrl.NewHandler(uc, hub)
	r := chi.NewRouter()
	r.Get("/ws/run", h.HandleRun)
	r.Get("/ws/history/{scope}", h.HandleHistory)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{uc: uc, hub: hub, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readAll(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	var frames []string
	for {
		_, data, err := conn.ReadMessage()
		gt.NoError(t, err).Required()
		frames = append(frames, string(data))
		if string(data) == wsmodel.DoneSentinel {
			return frames
		}
	}
}

func TestRunProtocol(t *testing.T) {
	srv := newTestServer(t, scripted(
		agent.Step{Line: "✨ thoughts: planning {prompt}"},
		agent.Step{Line: "🛠️ Manus selected 1 tools to use"},
	))

	conn := dial(t, srv.url+"/ws/run")
	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("a counter")))

	gt.Equal(t, readAll(t, conn), []string{
		"✨ thoughts: planning a counter",
		"🛠️ Manus selected 1 tools to use",
		wsmodel.DoneSentinel,
	})
}

func TestRunProtocolEmptyPrompt(t *testing.T) {
	srv := newTestServer(t, scripted())

	conn := dial(t, srv.url+"/ws/run")
	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("  ")))

	gt.Equal(t, readAll(t, conn), []string{
		wsmodel.ErrorLinePrefix + "prompt cannot be empty",
		wsmodel.DoneSentinel,
	})
}

func TestRunProtocolAgentFailure(t *testing.T) {
	srv := newTestServer(t, failingAgent{})
	conn := dial(t, srv.url+"/ws/run")
	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("go")))

	frames := readAll(t, conn)
	gt.A(t, frames).Length(3)
	gt.Equal(t, frames[0], "starting")
	gt.Equal(t, frames[1], wsmodel.ErrorLinePrefix+"exit status 1")
	gt.Equal(t, frames[2], wsmodel.DoneSentinel)
}

func TestRunProtocolUserInput(t *testing.T) {
	srv := newTestServer(t, scripted(
		agent.Step{Ask: "Which framework?"},
		agent.Step{Line: "using {answer}", Delay: 50 * time.Millisecond},
	))

	conn := dial(t, srv.url+"/ws/run")
	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("build")))

	_, data, err := conn.ReadMessage()
	gt.NoError(t, err)
	frame := wsmodel.Decode(data)
	gt.Equal(t, frame.Kind, wsmodel.FrameInputRequest)
	gt.Equal(t, frame.Text, "Which framework?")

	answer, err := wsmodel.NewUserInput("React").ToBytes()
	gt.NoError(t, err)
	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, answer))

	// input without a pending request is ignored
	stray, err := wsmodel.NewUserInput("again").ToBytes()
	gt.NoError(t, err)
	gt.NoError(t, conn.WriteMessage(websocket.TextMessage, stray))

	gt.Equal(t, readAll(t, conn), []string{"using React", wsmodel.DoneSentinel})
}

func TestRunProtocolWithStreamSession(t *testing.T) {
	srv := newTestServer(t, scripted(
		agent.Step{Line: "✨ thoughts: {prompt}"},
		agent.Step{Ask: "Pick a color"},
		agent.Step{Line: "🎯 Tool 'paint' completed its mission!"},
		agent.Step{Line: "painted {answer}"},
	))

	ctx := context.Background()
	events := make(chan stream.Event, 64)
	s := stream.New(ctx, srv.url+"/ws/run", stream.WithObserver(func(ev stream.Event) { events <- ev }))

	_, err := s.Start(ctx, "paint the wall")
	gt.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for asked := false; !asked; {
		select {
		case ev := <-events:
			asked = ev.Type == stream.EventInputRequest
		case <-timeout:
			t.Fatal("input request not received")
		}
	}

	_, err = s.Respond(ctx, "blue")
	gt.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	gt.NoError(t, s.Wait(waitCtx))

	snap := s.Snapshot()
	gt.Equal(t, snap.State, types.RunStateDone)
	msgs := snap.Session.Messages
	gt.A(t, msgs).Length(5)
	last := msgs[4]
	gt.A(t, last.Logs).Length(2)
	gt.Equal(t, last.Logs[0].Type, types.CategoryTool)
	gt.Equal(t, last.Logs[1].Content, []string{"painted blue"})
}

func websocketDial(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}
