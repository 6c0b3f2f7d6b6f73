// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/research"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/runner"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/telemetry"
)

type researchOutput struct {
	SessionID string `json:"session_id"`
	Ticker    string `json:"ticker"`
	Peers     any    `json:"peers,omitempty"`
	Report    string `json:"report"`
}

func runResearch(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("research", flag.ContinueOnError)
	ticker := cmd.String("ticker", "", "Stock ticker of the primary company")
	userID := cmd.String("user", "local", "User id")
	concurrency := cmd.Int("concurrency", 4, "Analysts running at once")
	asJSON := cmd.Bool("json", false, "Print the report as JSON")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("research", err.Error())
	}
	if *ticker == "" && cmd.NArg() > 0 {
		*ticker = cmd.Arg(0)
	}
	if *ticker == "" {
		return NewInvalidArgumentError("--ticker", "required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	pipeline, err := research.New(a.provider,
		research.WithModel(cfg.LLM.Model),
		research.WithPrompts(a.prompts),
		research.WithTools(a.tools),
		research.WithMaxConcurrency(*concurrency),
		research.WithMetrics(a.metrics),
		research.WithLogger(telemetry.Component(a.log, "research")),
	)
	if err != nil {
		return err
	}
	run, err := a.runner(pipeline)
	if err != nil {
		return err
	}
	return researchReport(ctx, run, runner.RunRequest{
		AppName: serviceName,
		UserID:  *userID,
		Message: *ticker,
	}, out, *asJSON)
}

// researchReport runs the pipeline and prints the report stored in the
// session state.
func researchReport(ctx context.Context, run *runner.Runner, req runner.RunRequest, out io.Writer, asJSON bool) error {
	res, err := run.RunSync(ctx, req)
	if err != nil {
		return err
	}
	sess, err := run.Sessions().Get(ctx, session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: res.SessionID})
	if err != nil {
		return err
	}
	result := researchOutput{SessionID: res.SessionID, Report: res.Response}
	if t, ok := sess.State[research.KeyTicker].(string); ok {
		result.Ticker = t
	}
	if report, ok := sess.State[research.KeyFinalReport].(string); ok && report != "" {
		result.Report = report
	}
	result.Peers = sess.State[research.KeyPeers]

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(out, "# %s\n\n%s\n", result.Ticker, result.Report)
	return nil
}
