// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
)

// MissingDistance stands in for the distance of a row that only one index
// returned. It is large enough to push such rows behind every row both
// indexes agree on.
const MissingDistance = 1e6

// Weights scales the text and image distances of a merged row.
type Weights struct {
	Text  float64 `koanf:"text" json:"text"`
	Image float64 `koanf:"image" json:"image"`
}

var (
	// EqualWeights gives both indexes the same say.
	EqualWeights = Weights{Text: 0.5, Image: 0.5}
	// TextHeavyWeights favours the text index.
	TextHeavyWeights = Weights{Text: 0.7, Image: 0.3}
)

// Row is one merged result.
type Row struct {
	Key           string         `json:"key"`
	TextDistance  float64        `json:"text_distance"`
	ImageDistance float64        `json:"image_distance"`
	Weighted      float64        `json:"weighted_distance"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// MergeOptions controls how two result lists are joined.
type MergeOptions struct {
	// KeyField is the payload field rows are joined on. Results without it
	// are joined on their point id.
	KeyField string
	Weights  Weights
}

// Merge outer-joins text and image results on their key, converts scores to
// distances (1 - score) and sorts by weighted distance, ascending. A key
// returned more than once by the same index keeps its closest distance. Ties
// keep first-seen order, text results first.
func Merge(text, image []memory.SearchResult, opts MergeOptions) []Row {
	rows := make([]*Row, 0, len(text)+len(image))
	index := make(map[string]*Row, len(text)+len(image))

	add := func(results []memory.SearchResult, isText bool) {
		for _, res := range results {
			key := rowKey(res, opts.KeyField)
			row, ok := index[key]
			if !ok {
				row = &Row{
					Key:           key,
					TextDistance:  MissingDistance,
					ImageDistance: MissingDistance,
					Metadata:      make(map[string]any),
				}
				index[key] = row
				rows = append(rows, row)
			}
			d := 1 - float64(res.Score)
			if isText {
				row.TextDistance = math.Min(row.TextDistance, d)
			} else {
				row.ImageDistance = math.Min(row.ImageDistance, d)
			}
			for k, v := range res.Point.Payload {
				if _, exists := row.Metadata[k]; !exists {
					row.Metadata[k] = v
				}
			}
		}
	}
	add(text, true)
	add(image, false)

	out := make([]Row, len(rows))
	for i, r := range rows {
		r.Weighted = opts.Weights.Distance(r.TextDistance, r.ImageDistance)
		out[i] = *r
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weighted < out[j].Weighted })
	return out
}

// Distance combines the two distances. It never decreases as either
// absolute distance grows, for non-negative weights.
func (w Weights) Distance(text, image float64) float64 {
	return w.Text*math.Abs(text) + w.Image*math.Abs(image)
}

func rowKey(res memory.SearchResult, field string) string {
	if field != "" {
		if v, ok := res.Point.Payload[field]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return res.ID
}

// FormatContext renders up to limit rows as numbered prompt lines. A
// non-positive limit renders every row.
func FormatContext(rows []Row, limit int) string {
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	var b strings.Builder
	for i, r := range rows {
		fmt.Fprintf(&b, "%d. [%s] (distance %.4f)", i+1, r.Key, r.Weighted)
		if text, ok := r.Metadata["text"].(string); ok && text != "" {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(text))
		}
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			if k != "text" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, r.Metadata[k])
		}
		b.WriteString("\n")
	}
	return b.String()
}
