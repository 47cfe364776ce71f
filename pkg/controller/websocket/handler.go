package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)


const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (64KB)
	maxMessageSize = 64 * 1024
)

// Handler serves the run protocol and history change feeds
type Handler struct {
	runs     interfaces.RunUsecases
	hub      *Hub
	upgrader websocket.Upgrader
}

type HandlerOption func(*Handler)

// WithCheckOrigin sets the origin policy of the upgrader. All origins are
// accepted by default.
func WithCheckOrigin(f func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = f
	}
}

func NewHandler(runs interfaces.RunUsecases, hub *Hub, opts ...HandlerOption) *Handler {
	h := &Handler{
		runs: runs,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// runConn is one connection of the run protocol
type runConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	// pending is set while an input request is unanswered
	pending atomic.Bool
}

func (c *runConn) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *runConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// HandleRun serves one run: the first text frame is the prompt, every agent
// line is forwarded verbatim and the run always ends with the DONE sentinel.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	logger := logging.From(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade connection", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close connection", "error", err)
		}
	}()

	c := &runConn{conn: conn}
	conn.SetReadLimit(maxMessageSize)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Warn("failed to read prompt", "error", err)
		return
	}
	prompt := string(data)

	if strings.TrimSpace(prompt) == "" {
		h.finish(r.Context(), c, wsmodel.ErrorLinePrefix+"prompt cannot be empty")
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	run, err := h.runs.StartRun(ctx, prompt)
	if err != nil {
		logger.Error("failed to start run", "error", err)
		h.finish(ctx, c, wsmodel.ErrorLinePrefix+err.Error())
		return
	}
	logger.Info("run started", "prompt_length", len(prompt))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readPump(ctx, c, run)
		cancel()
	}()

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		h.pingPump(ctx, c)
	}()

	for line := range run.Lines() {
		if line == wsmodel.DoneSentinel {
			logger.Warn("agent printed the end sentinel, dropped")
			continue
		}
		if frame := wsmodel.Decode([]byte(line)); frame.Kind == wsmodel.FrameInputRequest {
			c.pending.Store(true)
		}
		if err := c.send([]byte(line)); err != nil {
			logger.Debug("failed to forward line", "error", err)
			cancel()
		}
	}

	var lastLine string
	if err := run.Wait(); err != nil && ctx.Err() == nil {
		logger.Warn("run failed", "error", err)
		lastLine = wsmodel.ErrorLinePrefix + err.Error()
	}
	h.finish(ctx, c, lastLine)

	cancel()
	// unblock the reader
	_ = conn.SetReadDeadline(time.Now())
	<-readDone
	<-pingDone
	logger.Info("run finished")
}

// finish sends an optional last line and the sentinel, then closes politely
func (h *Handler) finish(ctx context.Context, c *runConn, lastLine string) {
	logger := logging.From(ctx)
	if lastLine != "" {
		if err := c.send([]byte(lastLine)); err != nil {
			logger.Debug("failed to send last line", "error", err)
			return
		}
	}
	if err := c.send([]byte(wsmodel.DoneSentinel)); err != nil {
		logger.Debug("failed to send end sentinel", "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readPump routes user input to the run until the connection is closed
func (h *Handler) readPump(ctx context.Context, c *runConn, run interfaces.AgentRun) {
	logger := logging.From(ctx)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("unexpected websocket close", "error", err)
			}
			return
		}

		answer, ok := wsmodel.DecodeUserInput(data)
		if !ok {
			logger.Warn("unexpected frame from client", "size", len(data))
			continue
		}
		if !c.pending.CompareAndSwap(true, false) {
			logger.Warn("user input without pending input request, ignored")
			continue
		}
		if err := run.Answer(ctx, answer); err != nil {
			logger.Warn("failed to pass user input to agent", "error", err)
		}
	}
}

func (h *Handler) pingPump(ctx context.Context, c *runConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// HandleHistory pushes a history_changed frame whenever the catalog of the
// scope in the URL changes
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	logger := logging.From(r.Context())

	scope := types.Scope(chi.URLParam(r, "scope"))
	if !scope.Validate() {
		http.Error(w, "invalid scope", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade connection", "error", err, "scope", scope)
		return
	}

	client := h.hub.NewClient(conn, scope)
	if !h.hub.Register(client) {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "history feed unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.hub.writePump(client)
	go h.hub.readPump(client)
}
