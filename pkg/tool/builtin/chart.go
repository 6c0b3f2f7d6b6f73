// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"fmt"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// Series is one named row of chart values.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

type chartArgs struct {
	ChartType string   `json:"chart_type,omitempty" jsonschema:"enum=bar,enum=line,enum=pie,enum=doughnut,description=Chart kind; defaults to bar"`
	Title     string   `json:"title,omitempty"`
	Labels    []string `json:"labels" jsonschema:"description=Category labels of the x axis"`
	Series    []Series `json:"series" jsonschema:"description=Data series; each needs one value per label"`
}

// Dataset is a chart series as rendered by the UI.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// ChartPayload is the JSON document the chat UI renders as a chart.
type ChartPayload struct {
	Type     string    `json:"type"`
	Title    string    `json:"title,omitempty"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

var chartTypes = map[string]bool{"bar": true, "line": true, "pie": true, "doughnut": true}

// FormatChart validates chart data and builds the payload.
func FormatChart(chartType, title string, labels []string, series []Series) (ChartPayload, error) {
	if chartType == "" {
		chartType = "bar"
	}
	if !chartTypes[chartType] {
		return ChartPayload{}, kerrors.New(kerrors.CodeInvalidInput, "unsupported chart type "+chartType, nil)
	}
	if len(labels) == 0 || len(series) == 0 {
		return ChartPayload{}, kerrors.New(kerrors.CodeInvalidInput, "labels and series are required", nil)
	}
	out := ChartPayload{Type: chartType, Title: title, Labels: labels}
	for _, s := range series {
		if len(s.Values) != len(labels) {
			return ChartPayload{}, kerrors.New(kerrors.CodeInvalidInput,
				fmt.Sprintf("series %q has %d values for %d labels", s.Name, len(s.Values), len(labels)), nil)
		}
		out.Datasets = append(out.Datasets, Dataset{Label: s.Name, Data: s.Values})
	}
	return out, nil
}

// FormatChartPayload returns the format_chart_payload tool.
func FormatChartPayload() tool.Tool {
	return tool.NewFunctionTool("format_chart_payload",
		"Formats labelled numeric series into a chart payload the UI can render.",
		func(_ context.Context, in chartArgs) (ChartPayload, error) {
			return FormatChart(in.ChartType, in.Title, in.Labels, in.Series)
		})
}
