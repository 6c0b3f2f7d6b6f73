// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt stores named instruction blocks and renders them with
// session state through text/template.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// Names of the built-in instruction blocks.
const (
	Discovery  = "discovery"
	Analyst    = "analyst"
	Aggregator = "aggregator"
	Assistant  = "assistant"
	Extraction = "extraction"
)

// Prompt is a named instruction template.
type Prompt struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
}

// Store holds prompts by name.
type Store struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
}

// NewStore returns a store seeded with the built-in prompts.
func NewStore() *Store {
	s := &Store{prompts: make(map[string]Prompt)}
	for _, p := range defaults {
		s.prompts[p.Name] = p
	}
	return s
}

// Add registers or replaces a prompt after checking that it parses.
func (s *Store) Add(p Prompt) error {
	if strings.TrimSpace(p.Name) == "" {
		return kerrors.New(kerrors.CodeInvalidInput, "prompt name is required", nil)
	}
	if _, err := parse(p.Name, p.Text); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[p.Name] = p
	return nil
}

// Get returns the named prompt.
func (s *Store) Get(name string) (Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok {
		return Prompt{}, kerrors.New(kerrors.CodeNotFound, "prompt not found: "+name, nil).WithContext("prompt", name)
	}
	return p, nil
}

// Names lists the stored prompts in order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render expands the named prompt with vars.
func (s *Store) Render(name string, vars map[string]any) (string, error) {
	p, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return Expand(p.Text, vars)
}

type pack struct {
	Prompts []Prompt `yaml:"prompts"`
}

// LoadFile adds every prompt of a YAML pack:
//
//	prompts:
//	  - name: assistant
//	    text: |
//	      You are ...
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kerrors.New(kerrors.CodeConfiguration, "read prompt pack", err).WithContext("path", path)
	}
	var p pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return kerrors.New(kerrors.CodeConfiguration, "parse prompt pack", err).WithContext("path", path)
	}
	for _, item := range p.Prompts {
		if err := s.Add(item); err != nil {
			return err
		}
	}
	return nil
}

var funcs = template.FuncMap{
	"hasPrefix":  strings.HasPrefix,
	"trimPrefix": strings.TrimPrefix,
	"upper":      strings.ToUpper,
	"lower":      strings.ToLower,
	"join":       strings.Join,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInvalidInput, "parse prompt template", err).WithContext("prompt", name)
	}
	return t, nil
}

// Expand renders text as a template over vars. Missing keys render empty.
func Expand(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	t, err := parse("inline", text)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", kerrors.New(kerrors.CodeInvalidInput, fmt.Sprintf("render prompt: %v", err), err)
	}
	// Missing map keys of interface type print as "<no value>".
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
