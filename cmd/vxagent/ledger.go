// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/ledger"
)

// runLedger generates a ledger CSV, or checks one with --check.
func runLedger(args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("ledger", flag.ContinueOnError)
	cmd.SetOutput(io.Discard)
	path := cmd.String("out", "-", "Output CSV path ('-' for stdout)")
	seed := cmd.Uint64("seed", 0, "Random seed; equal seeds give equal ledgers")
	count := cmd.Int("transactions", 0, "Number of transactions (default 200)")
	vendor := cmd.String("vendor", "", "Vendor that receives the anomaly")
	check := cmd.String("check", "", "Validate an existing CSV instead of generating")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("ledger", err.Error())
	}

	if *check != "" {
		return checkLedger(*check, out)
	}

	l, err := ledger.Generate(ledger.Config{
		Seed:          *seed,
		Transactions:  *count,
		AnomalyVendor: *vendor,
	})
	if err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}

	if *path == "-" {
		return l.WriteCSV(out)
	}
	f, err := os.Create(*path)
	if err != nil {
		return kerrors.New(kerrors.CodeInvalidInput, "create ledger file", err).WithContext("path", *path)
	}
	if err := l.WriteCSV(f); err != nil {
		f.Close()
		return kerrors.New(kerrors.CodeInternal, "write ledger", err).WithContext("path", *path)
	}
	if err := f.Close(); err != nil {
		return kerrors.New(kerrors.CodeInternal, "write ledger", err).WithContext("path", *path)
	}
	fmt.Fprintf(out, "wrote %d transactions to %s (anomaly vendor %q)\n", len(l.Transactions), *path, l.AnomalyVendor)
	return nil
}

func checkLedger(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return kerrors.New(kerrors.CodeNotFound, "open ledger file", err).WithContext("path", path)
	}
	defer f.Close()

	l, err := ledger.ReadCSV(f)
	if err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	var total int64
	for _, tx := range l.Anomalies() {
		total += tx.AmountCents
	}
	fmt.Fprintf(out, "ok: %d transactions, anomaly vendor %q, anomaly total %s\n",
		len(l.Transactions), l.AnomalyVendor, ledger.FormatCents(total))
	return nil
}
