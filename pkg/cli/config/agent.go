package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/service/agent"
	"github.com/urfave/cli/v3"
)

const (
	AgentProcess = "process"
	AgentDemo    = "demo"
)

// agentFile is the layout of the agent definition file
//
//	[agent]
//	command = "python"
//	args = ["agent.py", "--prompt", "{prompt}"]
//	workdir = "./work"
//	prompt_via_stdin = false
//
//	[agent.env]
//	LOG_LEVEL = "info"
type agentFile struct {
	Agent agent.ProcessConfig `toml:"agent"`
}

type Agent struct {
	mode string
	file string
}

func (x *Agent) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Usage:       "Agent mode [process|demo]",
			Category:    "Agent",
			Value:       AgentDemo,
			Destination: &x.mode,
			Sources:     cli.EnvVars("AGENTRUN_AGENT"),
		},
		&cli.StringFlag{
			Name:        "agent-config",
			Usage:       "TOML file defining the agent process (required for process mode)",
			Category:    "Agent",
			Destination: &x.file,
			Sources:     cli.EnvVars("AGENTRUN_AGENT_CONFIG"),
		},
	}
}

func (x Agent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", x.mode),
		slog.String("config", x.file),
	)
}

// Load reads the process definition file
func (x *Agent) Load() (*agent.ProcessConfig, error) {
	if x.file == "" {
		return nil, goerr.New("agent config file is required for process mode", goerr.T(errs.TagValidation))
	}

	raw, err := os.ReadFile(filepath.Clean(x.file))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read agent config", goerr.TV(errs.PathKey, x.file))
	}

	var f agentFile
	if err := toml.Unmarshal(raw, &f); err != nil {
		return nil, goerr.Wrap(err, "failed to parse agent config",
			goerr.TV(errs.PathKey, x.file),
			goerr.T(errs.TagValidation))
	}
	if err := f.Agent.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid agent config", goerr.TV(errs.PathKey, x.file))
	}
	return &f.Agent, nil
}

// Configure creates the agent. Files generated by the agent are put into
// the workspace of storage.
func (x *Agent) Configure(storage interfaces.StorageClient) (interfaces.Agent, error) {
	switch x.mode {
	case AgentDemo, "":
		return agent.NewDemo(storage), nil

	case AgentProcess:
		cfg, err := x.Load()
		if err != nil {
			return nil, err
		}
		p, err := agent.NewProcess(*cfg, agent.WithWorkspace(storage))
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, goerr.New("unknown agent mode", goerr.V("mode", x.mode), goerr.T(errs.TagValidation))
	}
}
