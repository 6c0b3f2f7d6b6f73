// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// TimeLayout is the timestamp format used in CSV files.
const TimeLayout = "2006-01-02 15:04:05"

var header = []string{"transaction_id", "date", "vendor", "amount", "category", "description", "approved_vendor"}

// WriteCSV writes the ledger with a header row.
func (l *Ledger) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, tx := range l.Transactions {
		rec := []string{
			tx.ID,
			tx.Date.UTC().Format(TimeLayout),
			tx.Vendor,
			tx.Amount(),
			tx.Category,
			tx.Description,
			strconv.FormatBool(tx.Approved),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a ledger written by WriteCSV. Vendors flagged as approved
// become the approved list; the single unapproved vendor is the anomaly
// vendor.
func ReadCSV(r io.Reader) (*Ledger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	first, err := cr.Read()
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "read ledger header", err)
	}
	if strings.Join(first, ",") != strings.Join(header, ",") {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "unexpected ledger header", nil).
			WithContext("header", strings.Join(first, ","))
	}

	l := &Ledger{}
	approved := map[string]bool{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, kerrors.New(kerrors.CodeInvalidInput, "read ledger row", err).WithContext("line", line)
		}
		tx, err := parseRecord(rec)
		if err != nil {
			return nil, kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("ledger line %d", line), err)
		}
		if tx.Approved {
			if !approved[tx.Vendor] {
				approved[tx.Vendor] = true
				l.ApprovedVendors = append(l.ApprovedVendors, tx.Vendor)
			}
		} else if l.AnomalyVendor == "" {
			l.AnomalyVendor = tx.Vendor
		}
		l.Transactions = append(l.Transactions, tx)
	}
	return l, nil
}

func parseRecord(rec []string) (Transaction, error) {
	at, err := time.ParseInLocation(TimeLayout, rec[1], time.UTC)
	if err != nil {
		return Transaction{}, err
	}
	cents, err := ParseCents(rec[3])
	if err != nil {
		return Transaction{}, err
	}
	ok, err := strconv.ParseBool(rec[6])
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:          rec[0],
		Date:        at,
		Vendor:      rec[2],
		AmountCents: cents,
		Category:    rec[4],
		Description: rec[5],
		Approved:    ok,
	}, nil
}

// ParseCents parses "1234.56" (or "1234", "1234.5") into cents without
// going through floating point.
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if !digits(whole) || (frac != "" && !digits(frac)) {
		return 0, fmt.Errorf("amount %q is not a decimal number", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	c := w*100 + f
	if neg {
		c = -c
	}
	return c, nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
