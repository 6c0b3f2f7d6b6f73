// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/runner"
)

func runChat(ctx context.Context, cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	cmd := flag.NewFlagSet("chat", flag.ContinueOnError)
	userID := cmd.String("user", "local", "User id")
	sessionID := cmd.String("session", "", "Resume this session (default: new session)")
	prompt := cmd.String("prompt", "", "Single prompt to run (non-interactive)")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("chat", err.Error())
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	root, err := a.assistant()
	if err != nil {
		return err
	}
	run, err := a.runner(root)
	if err != nil {
		return err
	}

	req := runner.RunRequest{AppName: serviceName, UserID: *userID, SessionID: *sessionID}
	if req.SessionID == "" {
		req.SessionID = "sess-" + uuid.NewString()
	}

	if *prompt != "" {
		req.Message = *prompt
		return chatTurn(ctx, run, req, out)
	}
	return chatLoop(ctx, run, req, in, out, isTerminal(in))
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// chatLoop reads one message per line until EOF or "exit". Failed turns are
// reported and the loop continues on the same session.
func chatLoop(ctx context.Context, run *runner.Runner, req runner.RunRequest, in io.Reader, out io.Writer, interactive bool) error {
	if interactive {
		fmt.Fprintf(out, "Session %s. Type 'exit' or Ctrl+C to quit.\n", req.SessionID)
	}
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "\n> ")
		}
		if ctx.Err() != nil || !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		req.Message = input
		if err := chatTurn(ctx, run, req, out); err != nil {
			NewCLIError(kerrors.As(err), hintFor(kerrors.CodeOf(err))).PrintError(out, false)
		}
	}
	if err := scanner.Err(); err != nil {
		return kerrors.New(kerrors.CodeInvalidInput, "read input", err)
	}
	return nil
}

// chatTurn streams one turn to out. Deltas are printed as they arrive; the
// final text is printed only when nothing was streamed.
func chatTurn(ctx context.Context, run *runner.Runner, req runner.RunRequest, out io.Writer) error {
	events, err := run.Run(ctx, req)
	if err != nil {
		return err
	}
	streamed := false
	var runErr error
	for ev := range events {
		switch ev.Type {
		case agent.EventModelDelta:
			if ev.Branch == "" {
				fmt.Fprint(out, ev.Text)
				streamed = true
			}
		case agent.EventToolCall:
			if ev.ToolCall != nil {
				fmt.Fprintf(out, "[tool] %s\n", ev.ToolCall.Function.Name)
			}
		case agent.EventFinal:
			if streamed {
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, ev.Text)
			}
		case agent.EventError:
			if !ev.Terminal() {
				continue
			}
			runErr = ev.Err
			if runErr == nil {
				runErr = kerrors.New(kerrors.ErrorCode(ev.ErrorCode), ev.Error, nil)
			}
		}
	}
	return runErr
}
