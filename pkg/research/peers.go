// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package research

import (
	"context"
	"encoding/json"
	"regexp"
	"slices"
	"strings"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/resilience"
)

// DefaultPeers is used when the discovery answer yields no usable ticker.
var DefaultPeers = []string{"AMD", "AVGO", "INTC"}

var (
	peerList = regexp.MustCompile(`(?s)\[.*\]`)
	ticker   = regexp.MustCompile(`^[A-Z.]{1,6}$`)
)

// NormalizeTicker upper-cases and trims t and reports whether the result
// is a valid ticker symbol.
func NormalizeTicker(t string) (string, bool) {
	t = strings.ToUpper(strings.TrimSpace(t))
	return t, ticker.MatchString(t)
}

// ParsePeers extracts the JSON ticker list from a discovery answer. It
// returns DefaultPeers, and true, when the text has no bracketed list, the
// list is not a JSON string array, or no entry is a valid ticker.
func ParsePeers(text string) ([]string, bool) {
	peers, usedFallback, _ := resilience.WithFallback(context.Background(),
		func(context.Context) ([]string, error) { return decodePeers(text) },
		resilience.Fallback[[]string](resilience.StaticFallback[[]string]{Value: DefaultPeers}),
	)
	return slices.Clone(peers), usedFallback
}

func decodePeers(text string) ([]string, error) {
	match := peerList.FindString(text)
	if match == "" {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "no ticker list in discovery answer", nil)
	}
	var raw []string
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "ticker list is not a JSON string array", err)
	}
	var out []string
	for _, r := range raw {
		if t, ok := NormalizeTicker(r); ok && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "no valid ticker in discovery answer", nil)
	}
	return out, nil
}
