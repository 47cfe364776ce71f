// Package chat is the request/response conversation flow. Every message
// mutation is written to history immediately.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

type Runner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

type HistoryWriter interface {
	Upsert(ctx context.Context, sess *session.Session) (bool, error)
}

type Conversation struct {
	runner  Runner
	history HistoryWriter

	mu   sync.Mutex
	chat *session.Session
}

type Option func(*Conversation)

func WithHistory(w HistoryWriter) Option {
	return func(c *Conversation) {
		c.history = w
	}
}

// WithSession continues an existing conversation
func WithSession(sess *session.Session) Option {
	return func(c *Conversation) {
		c.chat = sess.Clone()
	}
}

func New(ctx context.Context, runner Runner, opts ...Option) *Conversation {
	c := &Conversation{runner: runner}
	for _, opt := range opts {
		opt(c)
	}
	if c.chat == nil {
		c.chat = session.New(ctx, "")
	}
	return c
}

// Send adds prompt as a user message, runs it and adds the reply. A failed
// run adds a bot message describing the error and returns the error.
func (x *Conversation) Send(ctx context.Context, prompt string) (*session.ChatMessage, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, goerr.New("prompt is empty", goerr.T(errs.TagValidation))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.chat.AddMessage(ctx, types.RoleUser, prompt)
	x.persist(ctx)

	output, runErr := x.runner.Run(ctx, prompt)
	content := output
	if runErr != nil {
		content = wsmodel.ErrorLinePrefix + runErr.Error()
	}
	reply := x.chat.AddMessage(ctx, types.RoleBot, content)
	x.persist(ctx)

	if runErr != nil {
		return reply.Clone(), goerr.Wrap(runErr, "failed to run prompt", goerr.TV(errs.SessionIDKey, x.chat.ID))
	}
	return reply.Clone(), nil
}

// SetDraft marks the conversation as draft or not
func (x *Conversation) SetDraft(ctx context.Context, draft bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.chat.IsDraft == draft {
		return
	}
	x.chat.IsDraft = draft
	x.chat.Touch(ctx)
	x.persist(ctx)
}

func (x *Conversation) Session() *session.Session {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.chat.Clone()
}

func (x *Conversation) persist(ctx context.Context) {
	if x.history == nil {
		return
	}
	if _, err := x.history.Upsert(ctx, x.chat.Clone()); err != nil {
		logging.From(ctx).Warn("failed to persist conversation", "error", err, "session_id", x.chat.ID)
	}
}
