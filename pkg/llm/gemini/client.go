// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini adapts the Google Gen AI SDK to llm.Provider and provides
// the shared client constructor used by the embedder, the video generator
// and the document extractor.
package gemini

import (
	"context"
	"errors"
	"strings"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"google.golang.org/genai"
)

// ClientConfig selects the Gen AI backend and its credentials.
type ClientConfig struct {
	// Backend is "gemini" (API key) or "vertex" (project + location).
	Backend  string
	APIKey   string
	Project  string
	Location string
}

// Validate reports configuration problems before any network call is made.
func (c ClientConfig) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", "gemini":
		if c.APIKey == "" {
			return kerrors.New(kerrors.CodeConfiguration, "gemini backend requires an api key", nil).
				WithContext("hint", "set llm.api_key or VXAGENT_LLM__API_KEY")
		}
	case "vertex":
		if c.Project == "" || c.Location == "" {
			return kerrors.New(kerrors.CodeConfiguration, "vertex backend requires project and location", nil)
		}
	default:
		return kerrors.New(kerrors.CodeConfiguration, "unknown genai backend", nil).
			WithContext("backend", c.Backend)
	}
	return nil
}

// NewClient validates cfg and builds a genai client.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: cfg.APIKey}
	if strings.EqualFold(cfg.Backend, "vertex") {
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "create genai client", err)
	}
	return client, nil
}

// ClassifyError maps SDK failures to typed errors so retries key off the
// HTTP status the API reported.
func ClassifyError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return kerrors.FromStatus(apiErr.Code, msg, err).
			WithContext("status", apiErr.Status)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return kerrors.FromStatus(apiErrPtr.Code, msg, err).
			WithContext("status", apiErrPtr.Status)
	}
	var typed *kerrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if e := kerrors.Classify(err, msg); e.Code != kerrors.CodeInternal {
		return e
	}
	return kerrors.New(kerrors.CodeLLMError, msg, err)
}
