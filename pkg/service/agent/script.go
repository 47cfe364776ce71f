package agent

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
)

// WorkspacePrefix is the storage prefix of generated files
const WorkspacePrefix = "workspace/"

// Placeholders replaced in step text
const (
	PromptVar = "{prompt}"
	AnswerVar = "{answer}"
)

// Step is one action of a scripted agent. Exactly one of Line, Ask and File
// is set.
type Step struct {
	Line string
	// Ask emits an input request and blocks until it is answered
	Ask  string
	File *ScriptFile
	// Delay is waited before the step
	Delay time.Duration
}

type ScriptFile struct {
	Name    string
	Content string
}

// Script replays fixed steps and writes its files into the workspace of storage
type Script struct {
	storage interfaces.StorageClient
	steps   func(prompt string) []Step
}

var _ interfaces.Agent = &Script{}

func NewScript(storage interfaces.StorageClient, steps func(prompt string) []Step) *Script {
	return &Script{storage: storage, steps: steps}
}

// NewDemo creates the scripted agent that builds a small React app
func NewDemo(storage interfaces.StorageClient) *Script {
	return NewScript(storage, DemoSteps)
}

func (x *Script) Start(ctx context.Context, prompt string) (interfaces.AgentRun, error) {
	run := &scriptRun{
		lines:   make(chan string),
		answers: make(chan string, 1),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(run.done)
		defer close(run.lines)
		run.err = x.play(ctx, run, x.steps(prompt), prompt)
	}()

	return run, nil
}

func (x *Script) play(ctx context.Context, run *scriptRun, steps []Step, prompt string) error {
	answer := ""
	expand := func(s string) string {
		return strings.NewReplacer(PromptVar, prompt, AnswerVar, answer).Replace(s)
	}

	for _, step := range steps {
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "script is interrupted", goerr.T(errs.TagCancelled))
			}
		}

		switch {
		case step.Ask != "":
			req, err := wsmodel.NewInputRequest(expand(step.Ask)).ToBytes()
			if err != nil {
				return goerr.Wrap(err, "failed to encode input request")
			}
			if err := run.emit(ctx, string(req)); err != nil {
				return err
			}
			select {
			case answer = <-run.answers:
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "script is interrupted while waiting for input", goerr.T(errs.TagCancelled))
			}

		case step.File != nil:
			if err := x.write(ctx, step.File.Name, expand(step.File.Content)); err != nil {
				return err
			}

		default:
			if err := run.emit(ctx, expand(step.Line)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *Script) write(ctx context.Context, name, content string) error {
	w := x.storage.PutObject(ctx, WorkspacePrefix+name)
	if _, err := io.Copy(w, bytes.NewReader([]byte(content))); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write workspace file", goerr.TV(errs.FileNameKey, name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close workspace file", goerr.TV(errs.FileNameKey, name))
	}
	return nil
}

type scriptRun struct {
	lines   chan string
	answers chan string
	done    chan struct{}
	err     error
}

func (x *scriptRun) Lines() <-chan string {
	return x.lines
}

func (x *scriptRun) Answer(ctx context.Context, answer string) error {
	select {
	case x.answers <- answer:
		return nil
	case <-x.done:
		return goerr.New("script is already finished", goerr.T(errs.TagInvalidState))
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (x *scriptRun) Wait() error {
	<-x.done
	return x.err
}

func (x *scriptRun) emit(ctx context.Context, line string) error {
	select {
	case x.lines <- line:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "script is interrupted", goerr.T(errs.TagCancelled))
	}
}
