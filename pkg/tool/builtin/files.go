// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool"
)

// TempWriter writes files under a single directory.
type TempWriter struct {
	Dir string
}

// Write stores data as dir/name and returns the path. Names carrying path
// separators or dot segments are rejected.
func (w TempWriter) Write(name string, data []byte) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}
	dir := w.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", kerrors.New(kerrors.CodeToolFailure, "create temp directory", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", kerrors.New(kerrors.CodeToolFailure, "write file", err)
	}
	return path, nil
}

// ValidateFileName accepts plain file names only.
func ValidateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return kerrors.New(kerrors.CodeInvalidInput, "invalid file name", nil)
	case strings.ContainsAny(name, `/\`), filepath.Base(name) != name:
		return kerrors.New(kerrors.CodeInvalidInput, "file name must not contain a path: "+name, nil)
	}
	return nil
}

type writeArgs struct {
	Name    string `json:"name" jsonschema:"description=File name without directories"`
	Content string `json:"content"`
}

// WriteTempFile returns the write_temp_file tool.
func WriteTempFile(w TempWriter) tool.Tool {
	return tool.NewFunctionTool("write_temp_file",
		"Writes text content to a temporary file and returns its path.",
		func(_ context.Context, in writeArgs) (map[string]string, error) {
			path, err := w.Write(in.Name, []byte(in.Content))
			if err != nil {
				return nil, err
			}
			return map[string]string{"path": path}, nil
		})
}
