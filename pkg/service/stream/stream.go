// Package stream drives one agent run over a bidirectional connection: it
// sends the prompt, folds streamed log lines into the active bot message and
// carries the interactive input round trip on the same connection.
package stream

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/aggregator"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// ArtifactSource is consulted after a run completes
type ArtifactSource interface {
	Reset()
	ListFiles(ctx context.Context) ([]string, error)
	FetchLogs(ctx context.Context) ([]*session.TerminalLogEntry, error)
}

// HistoryWriter persists the conversation after a run completes
type HistoryWriter interface {
	Upsert(ctx context.Context, sess *session.Session) (bool, error)
}

// Session is the client side of the run protocol. All methods are safe for
// concurrent use; no method waits for the server except Wait and Close.
type Session struct {
	url       string
	dial      interfaces.DialFunc
	header    http.Header
	artifacts ArtifactSource
	history   HistoryWriter
	observer  func(Event)

	// writeMu serializes writes on the connection
	writeMu sync.Mutex

	mu         sync.Mutex
	state      types.RunState
	chat       *session.Session
	active     *session.ChatMessage
	transcript []*session.TerminalLogEntry
	files      []string
	question   string
	err        error
	run        *run
}

// run is the state of one connection. Frames of a run that is no longer
// s.run or was stopped are discarded.
type run struct {
	conn    interfaces.StreamConn
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	once    sync.Once

	// closeErr is set when Close stopped the run while it was active; the
	// loop reports it as the last event of the run
	closeErr error
}

type Option func(*Session)

func WithDialer(dial interfaces.DialFunc) Option {
	return func(s *Session) {
		s.dial = dial
	}
}

func WithHeader(header http.Header) Option {
	return func(s *Session) {
		s.header = header
	}
}

func WithArtifacts(src ArtifactSource) Option {
	return func(s *Session) {
		s.artifacts = src
	}
}

func WithHistory(w HistoryWriter) Option {
	return func(s *Session) {
		s.history = w
	}
}

// WithObserver sets the callback receiving events. Events of one run are
// delivered in the order they happened, outside of the session lock.
func WithObserver(f func(Event)) Option {
	return func(s *Session) {
		s.observer = f
	}
}

// WithSession resumes an existing conversation; new runs append to it
func WithSession(sess *session.Session) Option {
	return func(s *Session) {
		s.chat = sess.Clone()
	}
}

// Dial opens a websocket connection
func Dial(ctx context.Context, url string, header http.Header) (interfaces.StreamConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// New creates an idle session for the run endpoint url, e.g. ws://localhost:8000/ws/run
func New(ctx context.Context, url string, opts ...Option) *Session {
	s := &Session{
		url:   url,
		dial:  Dial,
		state: types.RunStateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chat == nil {
		s.chat = session.New(ctx, "")
	}
	return s
}

// Start opens a new run with prompt and returns the ID of the bot message
// receiving its output. A previous run still in progress is stopped first.
func (s *Session) Start(ctx context.Context, prompt string) (types.MessageID, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", goerr.New("prompt is empty", goerr.T(errs.TagValidation))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	prev := s.run
	if prev != nil {
		s.stopLocked(prev)
	}
	s.run = r
	s.state = types.RunStateConnecting
	s.err = nil
	s.question = ""
	s.chat.AddMessage(ctx, types.RoleUser, prompt)
	s.active = s.chat.AddMessage(ctx, types.RoleBot, "")
	activeID := s.active.ID
	s.mu.Unlock()

	logging.From(ctx).Debug("starting run", "session_id", s.chat.ID, "url", s.url)
	s.emit(Event{Type: EventState, State: types.RunStateConnecting, Message: activeID})

	go s.loop(runCtx, r, prompt)
	return activeID, nil
}

// Respond answers the pending input request on the same connection and
// returns the ID of the fresh bot message receiving subsequent output.
func (s *Session) Respond(ctx context.Context, answer string) (types.MessageID, error) {
	if strings.TrimSpace(answer) == "" {
		return "", goerr.New("answer is empty", goerr.T(errs.TagValidation))
	}

	s.mu.Lock()
	r := s.run
	if s.state != types.RunStateWaitingForInput || r == nil || r.conn == nil || r.stopped {
		state := s.state
		s.mu.Unlock()
		return "", goerr.New("session is not waiting for input",
			goerr.TV(errs.StateKey, state),
			goerr.T(errs.TagInvalidState))
	}

	// switch the active message before sending so that lines answering the
	// input can only land in the new message
	s.chat.AddMessage(ctx, types.RoleUser, answer)
	s.active = s.chat.AddMessage(ctx, types.RoleBot, "")
	activeID := s.active.ID
	s.state = types.RunStateStreaming
	s.question = ""
	s.mu.Unlock()

	s.emit(Event{Type: EventState, State: types.RunStateStreaming, Message: activeID})

	data, err := wsmodel.NewUserInput(answer).ToBytes()
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode user input")
	}
	if err := s.write(r, data); err != nil {
		s.fail(ctx, r, err)
		return "", err
	}
	return activeID, nil
}

// Close stops the current run. A run in progress ends as Failed with a
// cancellation error and no further frames are processed. The Failed event
// is delivered before Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	r := s.run
	if r != nil {
		active := s.state.Active() && !r.stopped
		s.stopLocked(r)
		if active {
			r.closeErr = s.err
		}
	}
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	<-r.done
	return nil
}

// stopLocked detaches r; it must be called with s.mu held
func (s *Session) stopLocked(r *run) {
	if r.stopped {
		return
	}
	r.stopped = true
	if s.state.Active() {
		s.state = types.RunStateFailed
		s.err = goerr.New("run is cancelled", goerr.T(errs.TagCancelled))
		s.question = ""
	}
	r.cancel()
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// Wait blocks until the current run and its post run work finished
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "waiting for run is interrupted", goerr.T(errs.TagTimeout))
	}
	return s.Err()
}

func (s *Session) write(r *run, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return goerr.Wrap(err, "failed to send frame", goerr.T(errs.TagExternal))
	}
	return nil
}

// loop reads the frames of r. Frame events and the final Failed event of a
// closed run are emitted from here, in order.
func (s *Session) loop(ctx context.Context, r *run, prompt string) {
	defer close(r.done)
	defer s.reportClosed(r)

	conn, err := s.dial(ctx, s.url, s.header)
	if err != nil {
		s.fail(ctx, r, goerr.Wrap(err, "failed to connect", goerr.TV(errs.URLKey, s.url), goerr.T(errs.TagExternal)))
		return
	}

	s.mu.Lock()
	if s.run != r || r.stopped {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.conn = conn
	s.mu.Unlock()

	if err := s.write(r, []byte(prompt)); err != nil {
		s.fail(ctx, r, err)
		return
	}

	if !s.open(r) {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.fail(ctx, r, goerr.Wrap(err, "connection closed before the run completed", goerr.T(errs.TagExternal)))
			return
		}

		frame := wsmodel.Decode(data)
		var ok bool
		switch frame.Kind {
		case wsmodel.FrameDone:
			s.finish(ctx, r)
			return
		case wsmodel.FrameInputRequest:
			ok = s.ask(ctx, r, frame.Text)
		default:
			ok = s.appendLine(ctx, r, frame.Text)
		}
		if !ok {
			return
		}
	}
}

func (s *Session) reportClosed(r *run) {
	s.mu.Lock()
	err := r.closeErr
	s.mu.Unlock()

	if err != nil {
		s.emit(Event{Type: EventState, State: types.RunStateFailed, Err: err})
	}
}

func (s *Session) current(r *run) bool {
	return s.run == r && !r.stopped
}

// open moves to Streaming and clears per-run state
func (s *Session) open(r *run) bool {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return false
	}
	s.state = types.RunStateStreaming
	s.transcript = nil
	s.files = nil
	activeID := s.active.ID
	s.mu.Unlock()

	if s.artifacts != nil {
		s.artifacts.Reset()
	}
	s.emit(Event{Type: EventState, State: types.RunStateStreaming, Message: activeID})
	return true
}

func (s *Session) appendLine(ctx context.Context, r *run, line string) bool {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return false
	}

	before := len(s.active.Logs)
	var category types.Category
	s.active.Logs, category = aggregator.Append(s.active.ID, s.active.Logs, line)
	now := session.Now(ctx)
	s.active.Timestamp = now
	s.chat.LastUpdated = now
	s.transcript = append(s.transcript, &session.TerminalLogEntry{
		ID:        uuid.New().String(),
		Line:      line,
		Level:     types.LevelOf(category),
		Timestamp: now,
	})
	section := s.active.Logs[len(s.active.Logs)-1]
	ev := Event{
		Type:       EventLine,
		State:      s.state,
		Message:    s.active.ID,
		Line:       line,
		Category:   category,
		Section:    section.Title,
		NewSection: len(s.active.Logs) > before,
	}
	s.mu.Unlock()

	s.emit(ev)
	return true
}

func (s *Session) ask(ctx context.Context, r *run, question string) bool {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return false
	}
	msg := s.chat.AddMessage(ctx, types.RoleBot, question)
	s.state = types.RunStateWaitingForInput
	s.question = question
	s.mu.Unlock()

	s.emit(Event{Type: EventInputRequest, State: types.RunStateWaitingForInput, Message: msg.ID, Question: question})
	return true
}

func (s *Session) fail(ctx context.Context, r *run, err error) {
	s.mu.Lock()
	if !s.current(r) || !s.state.Active() {
		s.mu.Unlock()
		return
	}
	s.state = types.RunStateFailed
	s.err = err
	s.question = ""
	r.stopped = true
	if r.conn != nil {
		_ = r.conn.Close()
	}
	s.mu.Unlock()

	logging.From(ctx).Warn("run failed", "error", err, "session_id", s.chat.ID)
	s.emit(Event{Type: EventState, State: types.RunStateFailed, Err: err})
}

func (s *Session) finish(ctx context.Context, r *run) {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return
	}
	s.state = types.RunStateDone
	s.question = ""
	_ = r.conn.Close()
	s.mu.Unlock()

	s.emit(Event{Type: EventState, State: types.RunStateDone})
	r.once.Do(func() { s.afterRun(ctx, r) })
}

// afterRun enumerates artifacts, replays the server log and persists the
// conversation. Each step is independent and its failure is not fatal.
func (s *Session) afterRun(ctx context.Context, r *run) {
	logger := logging.From(ctx)

	if s.artifacts != nil {
		files, err := s.artifacts.ListFiles(ctx)
		if err != nil {
			logger.Warn("failed to list generated files", "error", err)
		} else {
			s.mu.Lock()
			if s.run == r {
				s.files = append([]string{}, files...)
				if len(files) > 0 {
					s.chat.GeneratedFiles = append([]string{}, files...)
				}
			}
			s.mu.Unlock()
			s.emit(Event{Type: EventFiles, State: types.RunStateDone, Files: files})
		}

		entries, err := s.artifacts.FetchLogs(ctx)
		if err != nil {
			logger.Warn("failed to replay run log", "error", err)
		} else if len(entries) > 0 {
			s.mu.Lock()
			if s.run == r {
				s.transcript = entries
			}
			s.mu.Unlock()
		}
	}

	if s.history != nil {
		s.mu.Lock()
		if s.run != r {
			s.mu.Unlock()
			return
		}
		s.chat.Touch(ctx)
		snapshot := s.chat.Clone()
		s.mu.Unlock()

		if _, err := s.history.Upsert(ctx, snapshot); err != nil {
			logger.Warn("failed to persist session", "error", err, "session_id", snapshot.ID)
		}
	}
}

func (s *Session) emit(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}
