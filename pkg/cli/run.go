package cli

import (
	"bufio"
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/agentrun/pkg/cli/config"
	"github.com/secmon-lab/agentrun/pkg/domain/model/errs"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/service/artifact"
	"github.com/secmon-lab/agentrun/pkg/service/stream"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var (
		clientCfg  config.Client
		catalogCfg config.Catalog
		prompt     string
		resumeID   string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Stream a run of the agent; answers to its questions are read from stdin",
		Flags: joinFlags(
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "prompt",
					Aliases:     []string{"p"},
					Usage:       "Prompt of the run",
					Required:    true,
					Destination: &prompt,
				},
				&cli.StringFlag{
					Name:        "session",
					Usage:       "Resume the session with this ID from the local history",
					Destination: &resumeID,
				},
			},
			clientCfg.Flags(),
			catalogCfg.Flags(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logging.Default().Debug("run options", "client", clientCfg, "catalog", catalogCfg)

			runURL, err := clientCfg.RunURL()
			if err != nil {
				return err
			}
			baseURL, err := clientCfg.BaseURL()
			if err != nil {
				return err
			}
			scope, err := clientCfg.Scope()
			if err != nil {
				return err
			}

			local, err := openHistory(ctx, &catalogCfg, scope)
			if err != nil {
				return err
			}
			defer local.close()

			p := newPrinter(stdout(cmd))
			questions := make(chan string, 1)

			opts := []stream.Option{
				stream.WithArtifacts(artifact.New(baseURL)),
				stream.WithHistory(local.store),
				stream.WithObserver(func(ev stream.Event) {
					p.handle(ev)
					if ev.Type == stream.EventInputRequest {
						select {
						case questions <- ev.Question:
						default:
							logging.Default().Warn("input request is dropped", "question", ev.Question)
						}
					}
				}),
			}
			if resumeID != "" {
				prev := local.find(ctx, types.SessionID(resumeID))
				if prev == nil {
					return goerr.New("session not found", goerr.TV(errs.SessionIDKey, types.SessionID(resumeID)), goerr.T(errs.TagNotFound))
				}
				opts = append(opts, stream.WithSession(prev))
			}

			sess := stream.New(ctx, runURL, opts...)
			defer func() { _ = sess.Close() }()

			if _, err := sess.Start(ctx, prompt); err != nil {
				return err
			}
			local.rememberPrompt(ctx, prompt)

			return drive(ctx, sess, questions, bufio.NewScanner(stdin(cmd)))
		},
	}
}

type answer struct {
	text string
	err  error
}

// drive waits for the run and answers its input requests with lines of input.
// Stdin is read in the background so an interrupt is handled while a question
// is pending.
func drive(ctx context.Context, sess *stream.Session, questions <-chan string, input *bufio.Scanner) error {
	done := make(chan error, 1)
	go func() { done <- sess.Wait(ctx) }()

	var answers chan answer
	for {
		select {
		case <-questions:
			if answers != nil {
				continue
			}
			answers = make(chan answer, 1)
			go func(ch chan<- answer) {
				text, err := readAnswer(input)
				ch <- answer{text: text, err: err}
			}(answers)

		case a := <-answers:
			answers = nil
			if a.err != nil {
				return a.err
			}
			if _, err := sess.Respond(ctx, a.text); err != nil {
				return err
			}
			// the previous Wait keeps tracking the same run

		case err := <-done:
			if err != nil {
				return err
			}
			return nil

		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "run is interrupted", goerr.T(errs.TagCancelled))
		}
	}
}

func readAnswer(input *bufio.Scanner) (string, error) {
	for input.Scan() {
		if answer := strings.TrimSpace(input.Text()); answer != "" {
			return answer, nil
		}
	}
	if err := input.Err(); err != nil {
		return "", goerr.Wrap(err, "failed to read answer")
	}
	return "", goerr.New("input is closed before answering", goerr.T(errs.TagCancelled))
}
