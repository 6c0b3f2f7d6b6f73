// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"strings"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// VideoMaker generates a video and returns the path of the stored file.
type VideoMaker interface {
	GenerateFile(ctx context.Context, prompt string) (string, error)
}

type videoArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=Description of the video to generate"`
}

// GenerateVideo returns the generate_video tool.
func GenerateVideo(m VideoMaker) tool.Tool {
	return tool.NewFunctionTool("generate_video",
		"Generates a short video from a text prompt and returns the file path.",
		func(ctx context.Context, in videoArgs) (map[string]string, error) {
			if strings.TrimSpace(in.Prompt) == "" {
				return nil, kerrors.New(kerrors.CodeInvalidInput, "prompt is required", nil)
			}
			path, err := m.GenerateFile(ctx, in.Prompt)
			if err != nil {
				return nil, err
			}
			return map[string]string{"path": path}, nil
		})
}
