// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads vxagent settings from defaults, a YAML file, an
// optional profile overlay, VXAGENT_ environment variables and --set flags,
// in that order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

// EnvPrefix is the prefix for environment overrides. A double underscore
// separates nesting levels: VXAGENT_LLM__API_KEY sets llm.api_key.
const EnvPrefix = "VXAGENT_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	LLM       LLMConfig       `koanf:"llm"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	Vector    VectorConfig    `koanf:"vector"`
	Session   SessionConfig   `koanf:"session"`
	Server    ServerConfig    `koanf:"server"`
	Documents DocumentsConfig `koanf:"documents"`
	Media     MediaConfig     `koanf:"media"`
	Tools     ToolsConfig     `koanf:"tools"`
	Prompts   PromptsConfig   `koanf:"prompts"`
	MCP       MCPConfig       `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

type LLMConfig struct {
	Provider      string  `koanf:"provider"` // gemini, ollama, mock
	Model         string  `koanf:"model"`
	BaseURL       string  `koanf:"base_url"`
	APIKey        string  `koanf:"api_key"`
	Backend       string  `koanf:"backend"` // gemini, vertex
	Project       string  `koanf:"project"`
	Location      string  `koanf:"location"`
	Temperature   float64 `koanf:"temperature"`
	MaxIterations int     `koanf:"max_iterations"`
	Streaming     bool    `koanf:"streaming"`
}

type EmbedderConfig struct {
	Provider   string `koanf:"provider"` // gemini, ollama
	Model      string `koanf:"model"`
	BaseURL    string `koanf:"base_url"`
	Dimensions int    `koanf:"dimensions"`
}

type VectorConfig struct {
	Provider        string  `koanf:"provider"` // qdrant, inmemory
	Addr            string  `koanf:"addr"`
	TextCollection  string  `koanf:"text_collection"`
	ImageCollection string  `koanf:"image_collection"`
	TopK            int     `koanf:"top_k"`
	KeyField        string  `koanf:"key_field"`
	TextWeight      float64 `koanf:"text_weight"`
	ImageWeight     float64 `koanf:"image_weight"`
}

type SessionConfig struct {
	Backend          string `koanf:"backend"` // memory, sqlite
	DSN              string `koanf:"dsn"`
	HistoryWindow    int    `koanf:"history_window"`
	HistoryMaxTokens int    `koanf:"history_max_tokens"`
}

type ServerConfig struct {
	Addr                string `koanf:"addr"`
	ReadTimeoutSeconds  int    `koanf:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `koanf:"write_timeout_seconds"`
	MaxUploadMB         int    `koanf:"max_upload_mb"`
}

type DocumentsConfig struct {
	Dir   string `koanf:"dir"`
	Model string `koanf:"model"`
}

type MediaConfig struct {
	Dir                 string `koanf:"dir"`
	Model               string `koanf:"model"`
	PollIntervalSeconds int    `koanf:"poll_interval_seconds"`
}

type ToolsConfig struct {
	TempDir            string `koanf:"temp_dir"`
	CallTimeoutSeconds int    `koanf:"call_timeout_seconds"`
}

type PromptsConfig struct {
	// Path to a YAML prompt pack that overrides the built-in instructions.
	Path string `koanf:"path"`
}

type MCPConfig struct {
	CacheTTLSeconds int                        `koanf:"cache_ttl_seconds"`
	Servers         map[string]MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Transport string            `koanf:"transport"` // stdio, http, sse
	Command   string            `koanf:"command"`
	Args      []string          `koanf:"args"`
	Env       map[string]string `koanf:"env"`
	URL       string            `koanf:"url"`
}

// Options select the sources merged by LoadOptions.
type Options struct {
	Path      string
	Profile   string
	Overrides []string // key=value
}

var defaults = map[string]any{
	"log.level":                    "info",
	"log.format":                   "text",
	"telemetry.exporter":           "none",
	"llm.provider":                 "gemini",
	"llm.model":                    "gemini-2.5-flash",
	"llm.backend":                  "gemini",
	"llm.location":                 "us-central1",
	"llm.base_url":                 "http://localhost:11434",
	"llm.max_iterations":           5,
	"embedder.provider":            "gemini",
	"embedder.model":               "text-embedding-004",
	"embedder.base_url":            "http://localhost:11434",
	"embedder.dimensions":          768,
	"vector.provider":              "inmemory",
	"vector.addr":                  "localhost:6334",
	"vector.text_collection":       "products_text",
	"vector.image_collection":      "products_image",
	"vector.top_k":                 5,
	"vector.key_field":             "id",
	"vector.text_weight":           0.5,
	"vector.image_weight":          0.5,
	"session.backend":              "memory",
	"session.dsn":                  "file:vxagent.db",
	"session.history_window":       20,
	"server.addr":                  ":8080",
	"server.read_timeout_seconds":  30,
	"server.write_timeout_seconds": 300,
	"server.max_upload_mb":         20,
	"documents.dir":                "data/documents",
	"documents.model":              "gemini-2.5-flash",
	"media.dir":                    "data/media",
	"media.model":                  "veo-2.0-generate-001",
	"media.poll_interval_seconds":  10,
	"tools.temp_dir":               os.TempDir(),
	"tools.call_timeout_seconds":   60,
	"mcp.cache_ttl_seconds":        300,
}

// Load reads path (optional) on top of defaults and environment.
func Load(path string) (*Config, error) {
	return LoadOptions(Options{Path: path})
}

// LoadWithProfile overlays config.<profile>.yaml next to path when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadOptions(Options{Path: path, Profile: profile})
}

// LoadWithCLI extracts --config, --profile and --set from args and loads.
// Other arguments are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return LoadOptions(opts)
}

// LoadOptions merges every source and validates the result.
func LoadOptions(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, kerrors.New(kerrors.CodeConfiguration, "load config file", err).
				WithContext("path", opts.Path)
		}
		if overlay := profileConfigPath(opts.Path, opts.Profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, kerrors.New(kerrors.CodeConfiguration, "load profile config", err).
					WithContext("path", overlay)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "load environment", err)
	}

	for _, kv := range opts.Overrides {
		key, value, err := splitOverride(kv)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, kerrors.New(kerrors.CodeConfiguration, "apply override", err).
				WithContext("key", key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps VXAGENT_LLM__API_KEY to llm.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// profileConfigPath returns "<dir>/<name>.<profile><ext>" if that file exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

// ParseArgs extracts config options from command-line arguments. Both
// "--flag value" and "--flag=value" forms are accepted.
func ParseArgs(args []string) (Options, error) {
	var opts Options
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "-config", "--profile", "-profile", "--set", "-set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, kerrors.New(kerrors.CodeInvalidInput, "missing value for "+name, nil)
			}
			i++
			value = args[i]
		}
		switch strings.TrimLeft(name, "-") {
		case "config":
			opts.Path = value
		case "profile":
			opts.Profile = value
		case "set":
			if _, _, err := splitOverride(value); err != nil {
				return opts, err
			}
			opts.Overrides = append(opts.Overrides, value)
		}
	}
	return opts, nil
}

// splitOverride parses key=value. JSON values (objects, arrays, numbers,
// booleans) are decoded; anything else is kept as a string.
func splitOverride(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, kerrors.New(kerrors.CodeInvalidInput, "override must be key=value", nil).
			WithContext("override", kv)
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return key, decoded, nil
	}
	return key, raw, nil
}

// Validate reports settings that would only fail later at the first
// network call.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini":
		if err := validateGenAI(c.LLM); err != nil {
			return err
		}
	case "ollama", "mock":
	default:
		return invalid("llm.provider", c.LLM.Provider)
	}
	if c.LLM.MaxIterations < 1 {
		return invalid("llm.max_iterations", fmt.Sprint(c.LLM.MaxIterations))
	}

	switch c.Embedder.Provider {
	case "gemini":
		if c.LLM.Provider != "gemini" {
			if err := validateGenAI(c.LLM); err != nil {
				return err
			}
		}
	case "ollama", "none", "":
	default:
		return invalid("embedder.provider", c.Embedder.Provider)
	}

	switch c.Vector.Provider {
	case "qdrant":
		if c.Vector.Addr == "" {
			return invalid("vector.addr", "")
		}
	case "inmemory":
	default:
		return invalid("vector.provider", c.Vector.Provider)
	}
	if c.Vector.TextWeight < 0 || c.Vector.ImageWeight < 0 || c.Vector.TextWeight+c.Vector.ImageWeight == 0 {
		return invalid("vector weights", fmt.Sprintf("%g/%g", c.Vector.TextWeight, c.Vector.ImageWeight))
	}

	switch c.Session.Backend {
	case "memory":
	case "sqlite":
		if c.Session.DSN == "" {
			return invalid("session.dsn", "")
		}
	default:
		return invalid("session.backend", c.Session.Backend)
	}

	for name, srv := range c.MCP.Servers {
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return invalid("mcp.servers."+name+".command", "")
			}
		case "http", "sse":
			if srv.URL == "" {
				return invalid("mcp.servers."+name+".url", "")
			}
		default:
			return invalid("mcp.servers."+name+".transport", srv.Transport)
		}
	}
	return nil
}

func validateGenAI(l LLMConfig) error {
	switch l.Backend {
	case "vertex":
		if l.Project == "" || l.Location == "" {
			return kerrors.New(kerrors.CodeConfiguration, "vertex backend requires llm.project and llm.location", nil)
		}
	case "gemini", "":
		if l.APIKey == "" {
			return kerrors.New(kerrors.CodeConfiguration, "gemini backend requires llm.api_key", nil).
				WithContext("env", EnvPrefix+"LLM__API_KEY")
		}
	default:
		return invalid("llm.backend", l.Backend)
	}
	return nil
}

func invalid(key, value string) error {
	return kerrors.New(kerrors.CodeConfiguration, "invalid configuration value", nil).
		WithContext("key", key).
		WithContext("value", value)
}
