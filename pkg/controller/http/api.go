package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/artifact"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/chat"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
)

const maxBodySize = 8 << 20

// PreferenceValue is the body of the preference endpoints
type PreferenceValue struct {
	Value  string `json:"value"`
	Exists bool   `json:"exists"`
}

type upsertResponse struct {
	Changed bool `json:"changed"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.Handle(r.Context(), goerr.Wrap(err, "failed to write response"))
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		return goerr.Wrap(err, "invalid request body", goerr.T(errs.TagValidation))
	}
	return nil
}

func scopeParam(r *http.Request) types.Scope {
	return types.Scope(chi.URLParam(r, "scope"))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func runHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.RunRequest
		if err := decodeBody(r, &req); err != nil {
			handleError(w, r, err)
			return
		}

		output, err := uc.RunOnce(r.Context(), req.Prompt)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, chat.RunResponse{Status: "success", Output: output})
	}
}

func listFilesHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := uc.ListFiles(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, artifact.FileList{Files: files})
	}
}

func getFileHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := chi.URLParam(r, "name")

		rc, err := uc.OpenFile(ctx, name)
		if err != nil {
			handleError(w, r, err)
			return
		}
		defer safe.Close(ctx, rc)

		w.Header().Set("Content-Type", artifact.ContentType(name))
		if artifact.IsBinary(name) {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		}
		n := safe.Copy(ctx, w, rc)
		logging.From(ctx).Debug("file served", "name", name, "size", n)
	}
}

func previewHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := uc.PreviewFile(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = io.WriteString(w, html)
	}
}

func logsHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := uc.LatestLogs(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, artifact.LogList{Logs: logs})
	}
}

func getHistoryHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catalog, err := uc.LoadHistory(r.Context(), scopeParam(r))
		if err != nil {
			handleError(w, r, err)
			return
		}
		if catalog == nil {
			catalog = session.Catalog{}
		}
		writeJSON(w, r, http.StatusOK, catalog)
	}
}

func putHistoryHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var catalog session.Catalog
		if err := decodeBody(r, &catalog); err != nil {
			handleError(w, r, err)
			return
		}
		if err := uc.SaveHistory(r.Context(), scopeParam(r), catalog); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func upsertSessionHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess session.Session
		if err := decodeBody(r, &sess); err != nil {
			handleError(w, r, err)
			return
		}
		if sess.ID == "" {
			handleError(w, r, goerr.New("session id is required", goerr.T(errs.TagValidation)))
			return
		}

		changed, err := uc.UpsertSession(r.Context(), scopeParam(r), &sess)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, upsertResponse{Changed: changed})
	}
}

func getPreferenceHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value, ok, err := uc.GetPreference(r.Context(), scopeParam(r), chi.URLParam(r, "key"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, PreferenceValue{Value: value, Exists: ok})
	}
}

func putPreferenceHandler(uc UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pref PreferenceValue
		if err := decodeBody(r, &pref); err != nil {
			handleError(w, r, err)
			return
		}
		if err := uc.SetPreference(r.Context(), scopeParam(r), chi.URLParam(r, "key"), pref.Value); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
