// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Command vxagent serves and drives the agent toolkit: the HTTP shell, an
// interactive chat, the research pipeline, the synthetic ledger and an MCP
// stdio server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigArgs []string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err, false)
	}
	if global.Help || len(args) == 0 {
		printUsage(os.Stdout)
		return
	}
	if err := dispatch(ctx, global, args); err != nil {
		fatal(err, global.JSON)
	}
}

func dispatch(ctx context.Context, global globalFlags, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help":
		printUsage(os.Stdout)
		return nil
	case "version":
		fmt.Println("vxagent", version)
		return nil
	case "ledger":
		// Needs no configuration or credentials.
		return runLedger(rest, os.Stdout)
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		return NewConfigError(err, configPath(global.ConfigArgs))
	}

	switch cmd {
	case "serve":
		return runServe(ctx, cfg, rest)
	case "chat":
		return runChat(ctx, cfg, rest, os.Stdin, os.Stdout)
	case "research":
		return runResearch(ctx, cfg, rest, os.Stdout)
	case "mcp":
		return runMCP(ctx, cfg, rest)
	case "index":
		return runIndex(ctx, cfg, rest)
	}
	return NewInvalidArgumentError("command", fmt.Sprintf("unknown command %q", cmd))
}

// parseGlobalFlags consumes the flags before the command name. --config,
// --profile and --set are collected for config.LoadWithCLI.
func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		name, _, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-h", "--help":
			flags.Help = true
			return flags, nil, nil
		case "--json":
			flags.JSON = true
		case "--config", "--profile", "--set":
			if hasValue {
				flags.ConfigArgs = append(flags.ConfigArgs, arg)
				continue
			}
			if i+1 >= len(args) {
				return flags, nil, NewInvalidArgumentError(name, "missing value")
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		default:
			return flags, nil, NewInvalidArgumentError(name, "unknown flag")
		}
	}
	return flags, nil, nil
}

func configPath(args []string) string {
	opts, err := config.ParseArgs(args)
	if err != nil {
		return ""
	}
	return opts.Path
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: vxagent [global flags] <command> [flags]

Commands:
  serve                 HTTP server: chat, documents, extract, MCP over SSE, health
  chat                  interactive chat over the runner
  research --ticker T   competitor research report
  ledger --out F        synthetic ledger CSV with a planted anomaly
  index --file F        embed a JSONL file into the vector store
  mcp                   MCP stdio server exposing the builtin tools
  version               print the version

Global flags:
  --config PATH         YAML configuration file
  --profile NAME        overlay config.<NAME>.yaml next to --config
  --set key=value       override one configuration key (repeatable)
  --json                print errors as JSON
`)
}

func fatal(err error, asJSON bool) {
	var cliErr *CLIError
	if ce, ok := err.(*CLIError); ok {
		cliErr = ce
	} else {
		cliErr = NewCLIError(kerrors.As(err), hintFor(kerrors.CodeOf(err)))
	}
	cliErr.PrintError(os.Stderr, asJSON)
	os.Exit(exitCode(kerrors.CodeOf(err)))
}

func exitCode(code kerrors.ErrorCode) int {
	switch code {
	case kerrors.CodeInvalidInput, kerrors.CodeConfiguration:
		return 2
	default:
		return 1
	}
}
