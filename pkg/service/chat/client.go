package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/request_id"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
)

// RunRequest is the body of POST /api/run
type RunRequest struct {
	Prompt string `json:"prompt"`
}

// RunResponse is the result of POST /api/run
type RunResponse struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client calls the request/response run endpoint of the server
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Run executes prompt and returns the whole output of the run
func (x *Client) Run(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(RunRequest{Prompt: prompt})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal run request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/api/run", bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create run request")
	}
	req.Header.Set("Content-Type", "application/json")
	if id := request_id.FromContext(ctx); id != "" {
		req.Header.Set(request_id.Header, id)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to send run request", goerr.T(errs.TagExternal))
	}
	defer safe.Drain(ctx, resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read run response", goerr.T(errs.TagExternal))
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		tag := errs.TagExternal
		switch resp.StatusCode {
		case http.StatusBadRequest:
			tag = errs.TagValidation
		case http.StatusConflict:
			tag = errs.TagInvalidState
		}
		return "", goerr.New(msg, goerr.TV(errs.StatusKey, resp.StatusCode), goerr.T(tag))
	}

	var result RunResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", goerr.Wrap(err, "failed to parse run response", goerr.T(errs.TagExternal))
	}
	return result.Output, nil
}
