// Package agent provides the line producing agents driven by the run endpoint.
package agent

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/secmon-lab/agentrun/pkg/utils/safe"
	"golang.org/x/sync/errgroup"
)

// PromptPlaceholder in process arguments is replaced with the prompt
const PromptPlaceholder = "{prompt}"

const (
	// maxLineSize bounds one output line of the agent process
	maxLineSize = 1024 * 1024
	// uploadConcurrency bounds parallel workspace uploads
	uploadConcurrency = 4
)

// ProcessConfig describes the agent command
type ProcessConfig struct {
	Command        string            `toml:"command"`
	Args           []string          `toml:"args"`
	WorkDir        string            `toml:"workdir"`
	Env            map[string]string `toml:"env"`
	PromptViaStdin bool              `toml:"prompt_via_stdin"`
}

func (x ProcessConfig) Validate() error {
	if x.Command == "" {
		return goerr.New("agent command is required", goerr.T(errs.TagValidation))
	}
	return nil
}

// Process runs one agent process per run. stdout and stderr lines are
// merged into the line stream and answers are written to stdin.
type Process struct {
	cfg       ProcessConfig
	workspace interfaces.StorageClient
}

var _ interfaces.Agent = &Process{}

type ProcessOption func(*Process)

// WithWorkspace uploads the regular files the process leaves in its working
// directory to the workspace of storage when the process exits. Without a
// configured WorkDir each run gets a temporary directory.
func WithWorkspace(storage interfaces.StorageClient) ProcessOption {
	return func(x *Process) {
		x.workspace = storage
	}
}

func NewProcess(cfg ProcessConfig, opts ...ProcessOption) (*Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	x := &Process{cfg: cfg}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

func (x *Process) Start(ctx context.Context, prompt string) (interfaces.AgentRun, error) {
	args := make([]string, len(x.cfg.Args))
	for i, arg := range x.cfg.Args {
		args[i] = strings.ReplaceAll(arg, PromptPlaceholder, prompt)
	}

	workDir, cleanup, err := x.workDir()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, x.cfg.Command, args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	for k, v := range x.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cleanup()
		return nil, goerr.Wrap(err, "failed to create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, goerr.Wrap(err, "failed to create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, goerr.Wrap(err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, goerr.Wrap(err, "failed to start agent process", goerr.V("command", x.cfg.Command))
	}
	logging.From(ctx).Info("agent process started", "command", x.cfg.Command, "pid", cmd.Process.Pid)

	run := &processRun{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}

	if x.cfg.PromptViaStdin {
		if err := run.writeLine(prompt); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			cleanup()
			return nil, err
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go run.scan(ctx, &wg, stdout)
	go run.scan(ctx, &wg, stderr)

	go func() {
		wg.Wait()
		run.err = cmd.Wait()
		if run.err != nil {
			run.err = goerr.Wrap(run.err, "agent process failed", goerr.V("command", x.cfg.Command))
		}
		if x.workspace != nil && ctx.Err() == nil {
			if err := x.upload(ctx, workDir); err != nil {
				logging.From(ctx).Warn("failed to upload workspace", "error", err, "dir", workDir)
			}
		}
		cleanup()
		close(run.lines)
		close(run.done)
	}()

	return run, nil
}

func (x *Process) workDir() (string, func(), error) {
	if x.cfg.WorkDir != "" || x.workspace == nil {
		return x.cfg.WorkDir, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "agentrun-*")
	if err != nil {
		return "", nil, goerr.Wrap(err, "failed to create working directory")
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// upload copies the top level regular files of dir into the workspace
func (x *Process) upload(ctx context.Context, dir string) error {
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return goerr.Wrap(err, "failed to read working directory", goerr.TV(errs.PathKey, dir))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		eg.Go(func() error {
			return x.uploadFile(ctx, filepath.Join(dir, name), name)
		})
	}
	return eg.Wait()
}

func (x *Process) uploadFile(ctx context.Context, path, name string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return goerr.Wrap(err, "failed to open generated file", goerr.TV(errs.PathKey, path))
	}
	defer safe.Close(ctx, f)

	w := x.workspace.PutObject(ctx, WorkspacePrefix+name)
	n, err := io.Copy(w, f)
	if err != nil {
		safe.Close(ctx, w)
		return goerr.Wrap(err, "failed to upload generated file", goerr.TV(errs.FileNameKey, name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to upload generated file", goerr.TV(errs.FileNameKey, name))
	}

	logging.From(ctx).Debug("generated file uploaded", "name", name, "size", humanize.Bytes(uint64(n)))
	return nil
}

type processRun struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}
	err   error

	stdinMu sync.Mutex
	stdin   io.WriteCloser
}

func (x *processRun) Lines() <-chan string {
	return x.lines
}

func (x *processRun) Answer(ctx context.Context, answer string) error {
	return x.writeLine(answer)
}

func (x *processRun) Wait() error {
	<-x.done
	return x.err
}

func (x *processRun) writeLine(s string) error {
	x.stdinMu.Lock()
	defer x.stdinMu.Unlock()
	if _, err := io.WriteString(x.stdin, s+"\n"); err != nil {
		return goerr.Wrap(err, "failed to write to agent stdin")
	}
	return nil
}

func (x *processRun) scan(ctx context.Context, wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case x.lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-ctx.Done():
		}
	}
	if err := scanner.Err(); err != nil {
		logging.From(ctx).Warn("failed to read agent output", "error", err)
		// drain so that the process does not block on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}
