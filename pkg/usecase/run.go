package usecase

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/artifact"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/classifier"
	"github.com/secmon-lab/agentrun/pkg/utils/async"
	"github.com/secmon-lab/agentrun/pkg/utils/clock"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// RunLogObject is the storage object holding the log of the latest run
const RunLogObject = "logs/latest.log"


func (u *UseCases) StartRun(ctx context.Context, prompt string) (interfaces.AgentRun, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, goerr.New("prompt cannot be empty", goerr.T(errs.TagValidation))
	}
	if u.agent == nil {
		return nil, ErrAgentNotConfigured
	}
	ctx = logging.WithAttrs(ctx, "run_id", uuid.NewString())

	agentRun, err := u.agent.Start(ctx, prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start agent", goerr.T(errs.TagInternal))
	}

	r := &recordedRun{
		agent:   agentRun,
		storage: u.storageClient,
		lines:   make(chan string),
		done:    make(chan struct{}),
	}
	r.record(ctx, types.LevelInfo, "Prompt: "+prompt)

	async.Go(ctx, r.forward)
	return r, nil
}

// recordedRun forwards agent lines and keeps them as the run log
type recordedRun struct {
	agent   interfaces.AgentRun
	storage interfaces.StorageClient
	lines   chan string
	done    chan struct{}

	mu  sync.Mutex
	log bytes.Buffer

	once sync.Once
	err  error
}

func (x *recordedRun) Lines() <-chan string {
	return x.lines
}

func (x *recordedRun) Answer(ctx context.Context, answer string) error {
	x.record(ctx, types.LevelInfo, "User input: "+answer)
	return x.agent.Answer(ctx, answer)
}

// Wait waits for the agent and writes the run log. It returns the failure
// of the agent.
func (x *recordedRun) Wait() error {
	<-x.done
	return x.err
}

func (x *recordedRun) forward(ctx context.Context) error {
	defer close(x.done)
	defer close(x.lines)

	for line := range x.agent.Lines() {
		if frame := wsmodel.Decode([]byte(line)); frame.Kind == wsmodel.FrameInputRequest {
			x.record(ctx, types.LevelWarning, "Input requested: "+frame.Text)
		} else {
			x.record(ctx, types.LevelOf(classifier.Classify(line)), line)
		}
		select {
		case x.lines <- line:
		case <-ctx.Done():
		}
	}

	x.err = x.agent.Wait()
	if x.err != nil {
		x.record(ctx, types.LevelError, wsmodel.ErrorLinePrefix+x.err.Error())
	} else {
		x.record(ctx, types.LevelSuccess, "Run completed")
	}

	return x.flush(context.WithoutCancel(ctx))
}

func (x *recordedRun) record(ctx context.Context, level types.Level, line string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.log.WriteString(artifact.FormatLogLine(clock.Now(ctx), level, line))
	x.log.WriteByte('\n')
}

func (x *recordedRun) flush(ctx context.Context) error {
	x.mu.Lock()
	data := bytes.Clone(x.log.Bytes())
	x.mu.Unlock()

	w := x.storage.PutObject(ctx, RunLogObject)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write run log", goerr.T(errs.TagExternal))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close run log", goerr.T(errs.TagExternal))
	}
	logging.From(ctx).Debug("run log written", "object", RunLogObject, "size", len(data))
	return nil
}

// RunOnce runs prompt without the input round trip. A run asking for input
// is cancelled and fails with ErrInputRequired.
func (u *UseCases) RunOnce(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, err := u.StartRun(ctx, prompt)
	if err != nil {
		return "", err
	}

	var output []string
	var asked bool
	for line := range run.Lines() {
		if asked {
			continue
		}
		if frame := wsmodel.Decode([]byte(line)); frame.Kind == wsmodel.FrameInputRequest {
			asked = true
			cancel()
			continue
		}
		if line == wsmodel.DoneSentinel {
			continue
		}
		output = append(output, line)
	}

	runErr := run.Wait()
	if asked {
		return "", goerr.Wrap(ErrInputRequired, "run is cancelled")
	}
	if runErr != nil {
		return "", goerr.Wrap(runErr, "run failed")
	}
	return strings.Join(output, "\n"), nil
}

// LatestLogs returns the lines of the latest run log; no run means no lines
func (u *UseCases) LatestLogs(ctx context.Context) ([]string, error) {
	r, err := u.storageClient.GetObject(ctx, RunLogObject)
	if err != nil {
		if goerr.HasTag(err, errs.TagNotFound) {
			return []string{}, nil
		}
		return nil, goerr.Wrap(err, "failed to open run log")
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read run log", goerr.T(errs.TagExternal))
	}

	lines := []string{}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
