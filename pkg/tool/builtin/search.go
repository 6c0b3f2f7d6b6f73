// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"strings"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// KnowledgeSearcher renders the best matches for a query as prompt text.
type KnowledgeSearcher interface {
	SearchContext(ctx context.Context, query string, topK int) (string, error)
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=What to look up"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"description=Number of results; defaults to 5"`
}

// SearchKnowledgeBase returns the search_knowledge_base tool.
func SearchKnowledgeBase(s KnowledgeSearcher) tool.Tool {
	return tool.NewFunctionTool("search_knowledge_base",
		"Searches the knowledge base for passages and images related to the query.",
		func(ctx context.Context, in searchArgs) (string, error) {
			if strings.TrimSpace(in.Query) == "" {
				return "", kerrors.New(kerrors.CodeInvalidInput, "query is required", nil)
			}
			k := in.TopK
			if k <= 0 {
				k = 5
			}
			text, err := s.SearchContext(ctx, in.Query, k)
			if err != nil {
				return "", err
			}
			if text == "" {
				return "No matching documents found.", nil
			}
			return text, nil
		})
}
