package agent_test

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/agentrun/pkg/adapter/storage"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/service/agent"
)

func collect(t *testing.T, run interfaces.AgentRun, onRequest func(question string)) []string {
	t.Helper()
	var lines []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-run.Lines():
			if !ok {
				return lines
			}
			if frame := wsmodel.Decode([]byte(line)); frame.Kind == wsmodel.FrameInputRequest {
				onRequest(frame.Text)
				continue
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatal("agent did not finish")
			return nil
		}
	}
}

func requireShell(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
}

func TestProcessArgs(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	p, err := agent.NewProcess(agent.ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", `echo "prompt: $1"; echo "to stderr" 1>&2; echo "$GREETING"`, "sh", "{prompt}"},
		Env:     map[string]string{"GREETING": "hello"},
	})
	gt.NoError(t, err)

	run, err := p.Start(ctx, "build an app")
	gt.NoError(t, err)
	lines := collect(t, run, func(string) { t.Error("unexpected input request") })
	gt.NoError(t, run.Wait())

	gt.A(t, lines).Length(3)
	gt.A(t, lines).Has("prompt: build an app")
	gt.A(t, lines).Has("to stderr")
	gt.A(t, lines).Has("hello")
}

func TestProcessWorkspace(t *testing.T) {
	requireShell(t)
	ctx := context.Background()
	client := storage.NewMemoryClient()

	p, err := agent.NewProcess(agent.ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", `echo "<html></html>" > index.html; mkdir assets; echo "written"`},
	}, agent.WithWorkspace(client))
	gt.NoError(t, err)

	run, err := p.Start(ctx, "a page")
	gt.NoError(t, err)
	lines := collect(t, run, func(string) { t.Error("unexpected input request") })
	gt.NoError(t, run.Wait())
	gt.Equal(t, lines, []string{"written"})

	// directories are not uploaded
	files, err := client.ListObjects(ctx, agent.WorkspacePrefix)
	gt.NoError(t, err)
	gt.Equal(t, files, []string{"index.html"})

	r, err := client.GetObject(ctx, agent.WorkspacePrefix+"index.html")
	gt.NoError(t, err).Required()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "<html></html>\n")
}

func TestProcessStdin(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	p, err := agent.NewProcess(agent.ProcessConfig{
		Command: "sh",
		Args: []string{"-c", `read prompt; echo "got $prompt";
echo '{"type":"input_request","content":"Which framework?"}';
read answer; echo "using $answer"`},
		PromptViaStdin: true,
	})
	gt.NoError(t, err)

	run, err := p.Start(ctx, "make a counter")
	gt.NoError(t, err)

	var questions []string
	lines := collect(t, run, func(q string) {
		questions = append(questions, q)
		gt.NoError(t, run.Answer(ctx, "React"))
	})
	gt.NoError(t, run.Wait())

	gt.Equal(t, questions, []string{"Which framework?"})
	gt.Equal(t, lines, []string{"got make a counter", "using React"})
}

func TestProcessFailure(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	p, err := agent.NewProcess(agent.ProcessConfig{Command: "sh", Args: []string{"-c", "echo boom; exit 3"}})
	gt.NoError(t, err)

	run, err := p.Start(ctx, "x")
	gt.NoError(t, err)
	gt.Equal(t, collect(t, run, nil), []string{"boom"})
	gt.Error(t, run.Wait())
}

func TestProcessConfigValidation(t *testing.T) {
	_, err := agent.NewProcess(agent.ProcessConfig{})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagValidation))
}

func TestScript(t *testing.T) {
	ctx := context.Background()
	client := storage.NewMemoryClient()

	script := agent.NewScript(client, func(prompt string) []agent.Step {
		return []agent.Step{
			{Line: "working on {prompt}"},
			{Ask: "Name?"},
			{File: &agent.ScriptFile{Name: "hello.txt", Content: "hello {answer}"}},
			{Line: "done for {answer}"},
		}
	})

	run, err := script.Start(ctx, "greeting")
	gt.NoError(t, err)
	lines := collect(t, run, func(q string) {
		gt.Equal(t, q, "Name?")
		gt.NoError(t, run.Answer(ctx, "alice"))
	})
	gt.NoError(t, run.Wait())
	gt.Equal(t, lines, []string{"working on greeting", "done for alice"})

	r, err := client.GetObject(ctx, agent.WorkspacePrefix+"hello.txt")
	gt.NoError(t, err)
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "hello alice")
}

func TestScriptCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	script := agent.NewScript(storage.NewMemoryClient(), func(string) []agent.Step {
		return []agent.Step{{Ask: "waiting forever?"}}
	})

	run, err := script.Start(ctx, "x")
	gt.NoError(t, err)
	collect(t, run, func(string) { cancel() })

	err = run.Wait()
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagCancelled))
}

func TestDemo(t *testing.T) {
	ctx := context.Background()
	client := storage.NewMemoryClient()

	run, err := agent.NewDemo(client).Start(ctx, "a counter")
	gt.NoError(t, err)
	lines := collect(t, run, func(string) {
		gt.NoError(t, run.Answer(ctx, "Minimal"))
	})
	gt.NoError(t, run.Wait())
	gt.A(t, lines).Has("✨ Manus's thoughts: The user prefers Minimal")

	files, err := client.ListObjects(ctx, agent.WorkspacePrefix)
	gt.NoError(t, err)
	gt.Equal(t, files, []string{"App.jsx", "index.html", "styles.css"})
}
