package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/repository/memory"
	"github.com/secmon-lab/agentrun/pkg/service/chat"
	"github.com/secmon-lab/agentrun/pkg/service/history"
)

func newRunServer(t *testing.T) string {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/run", func(w http.ResponseWriter, r *http.Request) {
		var req chat.RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Prompt {
		case "ask me":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "agent requested input"})
		default:
			_ = json.NewEncoder(w).Encode(chat.RunResponse{Status: "success", Output: "echo: " + req.Prompt})
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestConversation(t *testing.T) {
	ctx := context.Background()
	store := history.New(memory.New(), types.DefaultScope, history.WithThrottle(time.Millisecond))
	conv := chat.New(ctx, chat.NewClient(newRunServer(t), nil), chat.WithHistory(store))

	reply, err := conv.Send(ctx, "hello")
	gt.NoError(t, err)
	gt.Equal(t, reply.Role, types.RoleBot)
	gt.Equal(t, reply.Content, "echo: hello")

	_, err = conv.Send(ctx, "ask me")
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagInvalidState))

	sess := conv.Session()
	gt.Equal(t, sess.Title, "hello")
	gt.A(t, sess.Messages).Length(4)
	gt.Equal(t, sess.Messages[3].Content, wsmodel.ErrorLinePrefix+"agent requested input")

	gt.NoError(t, store.Flush(ctx))
	catalog := store.Load(ctx)
	gt.A(t, catalog).Length(1)
	gt.Equal(t, catalog[0].ID, sess.ID)
	gt.A(t, catalog[0].Messages).Length(4)
}

func TestConversationRejectsEmptyPrompt(t *testing.T) {
	ctx := context.Background()
	conv := chat.New(ctx, chat.NewClient("http://127.0.0.1:1", nil))

	_, err := conv.Send(ctx, " ")
	gt.True(t, goerr.HasTag(err, errs.TagValidation))
	gt.A(t, conv.Session().Messages).Length(0)
}

func TestConversationDraft(t *testing.T) {
	ctx := context.Background()
	store := history.New(memory.New(), types.DefaultScope)
	conv := chat.New(ctx, chat.NewClient(newRunServer(t), nil), chat.WithHistory(store))

	conv.SetDraft(ctx, true)
	gt.NoError(t, store.Flush(ctx))
	catalog := store.Load(ctx)
	gt.A(t, catalog).Length(1)
	gt.True(t, catalog[0].IsDraft)
}
