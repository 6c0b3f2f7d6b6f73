// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger generates synthetic expense ledgers with a planted
// anomaly, for audit agent demos and tests.
package ledger

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// Anomaly defaults.
const (
	AnomalyCount      = 3
	AnomalyTotalCents = 12_000_000
	AnomalyYear       = 2026
)

// DefaultApprovedVendors are the vendors normal spend goes to.
var DefaultApprovedVendors = []string{
	"Acme Office Supply",
	"Globex Logistics",
	"Initech Software",
	"Umbrella Facilities",
	"Stark Hardware",
	"Wayne Consulting",
}

var categories = []string{"office", "travel", "software", "facilities", "hardware", "consulting"}

// Config controls Generate.
type Config struct {
	Seed            uint64   `koanf:"seed"`
	Transactions    int      `koanf:"transactions"`
	ApprovedVendors []string `koanf:"approved_vendors"`
	AnomalyVendor   string   `koanf:"anomaly_vendor"`
}

// Transaction is one ledger line. Amounts are in cents.
type Transaction struct {
	ID          string
	Date        time.Time
	Vendor      string
	AmountCents int64
	Category    string
	Description string
	Approved    bool
}

// Amount formats the amount as a decimal string.
func (t Transaction) Amount() string {
	return FormatCents(t.AmountCents)
}

// Ledger is a generated list of transactions ordered by date.
type Ledger struct {
	Transactions    []Transaction
	ApprovedVendors []string
	AnomalyVendor   string
}

func (c Config) withDefaults() Config {
	if c.Transactions <= 0 {
		c.Transactions = 200
	}
	if len(c.ApprovedVendors) == 0 {
		c.ApprovedVendors = DefaultApprovedVendors
	}
	if c.AnomalyVendor == "" {
		c.AnomalyVendor = "Shadow Ventures LLC"
	}
	return c
}

// Generate builds a ledger of normal spend plus exactly AnomalyCount
// transactions to the anomaly vendor. The anomalies total
// AnomalyTotalCents and fall on Fridays of AnomalyYear after 18:00. The
// same seed always yields the same ledger.
func Generate(cfg Config) (*Ledger, error) {
	cfg = cfg.withDefaults()
	if slices.Contains(cfg.ApprovedVendors, cfg.AnomalyVendor) {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "anomaly vendor must not be approved", nil).
			WithContext("vendor", cfg.AnomalyVendor)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	txs := make([]Transaction, 0, cfg.Transactions+AnomalyCount)
	start := time.Date(AnomalyYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < cfg.Transactions; i++ {
		day := start.AddDate(0, 0, rng.IntN(365))
		at := day.Add(time.Duration(8+rng.IntN(9))*time.Hour + time.Duration(rng.IntN(60))*time.Minute)
		cat := rng.IntN(len(categories))
		txs = append(txs, Transaction{
			Date:        at,
			Vendor:      cfg.ApprovedVendors[rng.IntN(len(cfg.ApprovedVendors))],
			AmountCents: 5_000 + rng.Int64N(495_000),
			Category:    categories[cat],
			Description: categories[cat] + " expense",
			Approved:    true,
		})
	}

	for i, amount := range splitAnomaly(rng) {
		txs = append(txs, Transaction{
			Date:        anomalyTime(rng, i),
			Vendor:      cfg.AnomalyVendor,
			AmountCents: amount,
			Category:    "consulting",
			Description: "advisory retainer",
		})
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	for i := range txs {
		txs[i].ID = fmt.Sprintf("TX-%05d", i+1)
	}
	return &Ledger{
		Transactions:    txs,
		ApprovedVendors: slices.Clone(cfg.ApprovedVendors),
		AnomalyVendor:   cfg.AnomalyVendor,
	}, nil
}

// splitAnomaly returns AnomalyCount positive amounts summing to
// AnomalyTotalCents.
func splitAnomaly(rng *rand.Rand) []int64 {
	third := int64(AnomalyTotalCents / AnomalyCount)
	a := third - 500_000 + rng.Int64N(1_000_000)
	b := third - 500_000 + rng.Int64N(1_000_000)
	return []int64{a, b, AnomalyTotalCents - a - b}
}

// anomalyTime picks a Friday evening in a distinct quarter of the year for
// each anomaly.
func anomalyTime(rng *rand.Rand, i int) time.Time {
	firstFriday := time.Date(AnomalyYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	for firstFriday.Weekday() != time.Friday {
		firstFriday = firstFriday.AddDate(0, 0, 1)
	}
	week := i*17 + rng.IntN(17)
	day := firstFriday.AddDate(0, 0, 7*week)
	hour := 18 + rng.IntN(6)
	minute := rng.IntN(60)
	if hour == 18 && minute == 0 {
		minute = 1
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Anomalies returns the transactions to the anomaly vendor.
func (l *Ledger) Anomalies() []Transaction {
	var out []Transaction
	for _, tx := range l.Transactions {
		if tx.Vendor == l.AnomalyVendor {
			out = append(out, tx)
		}
	}
	return out
}

// Validate checks the planted anomaly and that every other transaction
// goes to an approved vendor.
func (l *Ledger) Validate() error {
	if slices.Contains(l.ApprovedVendors, l.AnomalyVendor) {
		return invalid("anomaly vendor %q is approved", l.AnomalyVendor)
	}
	var total int64
	anomalies := l.Anomalies()
	for _, tx := range anomalies {
		total += tx.AmountCents
		if !AfterFridayClose(tx.Date) {
			return invalid("%s is not on a Friday after 18:00: %s", tx.ID, tx.Date.Format(time.RFC3339))
		}
		if tx.Date.Year() != AnomalyYear {
			return invalid("%s is outside %d", tx.ID, AnomalyYear)
		}
	}
	if len(anomalies) != AnomalyCount {
		return invalid("found %d anomaly transactions, want %d", len(anomalies), AnomalyCount)
	}
	if total != AnomalyTotalCents {
		return invalid("anomaly total is %s, want %s", FormatCents(total), FormatCents(AnomalyTotalCents))
	}
	for _, tx := range l.Transactions {
		if tx.Vendor != l.AnomalyVendor && !slices.Contains(l.ApprovedVendors, tx.Vendor) {
			return invalid("%s goes to unapproved vendor %q", tx.ID, tx.Vendor)
		}
	}
	return nil
}

// AfterFridayClose reports whether t is a Friday strictly after 18:00.
func AfterFridayClose(t time.Time) bool {
	if t.Weekday() != time.Friday {
		return false
	}
	h, m, s := t.Clock()
	return h > 18 || (h == 18 && (m > 0 || s > 0 || t.Nanosecond() > 0))
}

// FormatCents renders cents as "1234.56".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

func invalid(format string, args ...any) error {
	return kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("ledger: "+format, args...), nil)
}
