// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import "github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"

// Deps carries the optional backends of the builtin tools. Tools whose
// backend is nil are left out.
type Deps struct {
	Searcher KnowledgeSearcher
	Videos   VideoMaker
	TempDir  string
}

// All returns every builtin tool available with deps.
func All(deps Deps) []tool.Tool {
	tools := []tool.Tool{
		CurrentDateTime(),
		DaysBetween(),
		FormatChartPayload(),
		WriteTempFile(TempWriter{Dir: deps.TempDir}),
	}
	if deps.Searcher != nil {
		tools = append(tools, SearchKnowledgeBase(deps.Searcher))
	}
	if deps.Videos != nil {
		tools = append(tools, GenerateVideo(deps.Videos))
	}
	return tools
}
