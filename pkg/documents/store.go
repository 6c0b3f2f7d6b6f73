// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

// Package documents stores uploaded business documents next to their cached
// field extractions.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/tool/builtin"
)

const extractionSuffix = ".json"

// Trace points at the text a field value was read from.
type Trace struct {
	Field string `json:"field"`
	Page  int    `json:"page"`
	Text  string `json:"text"`
}

// Box is a normalized bounding box around a field on a page.
type Box struct {
	Field  string  `json:"field"`
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Extraction is the cached result for one document, stored as
// "<document>.json".
type Extraction struct {
	Document        string         `json:"document"`
	ExtractedAt     time.Time      `json:"extracted_at"`
	Fields          map[string]any `json:"fields"`
	AnnotatedImages []string       `json:"annotated_images"`
	Traces          []Trace        `json:"traces"`
	Boxes           []Box          `json:"boxes"`
}

// Info describes a stored document.
type Info struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	ModifiedAt    time.Time `json:"modified_at"`
	HasExtraction bool      `json:"has_extraction"`
}

// Store keeps documents and extractions in one directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, kerrors.New(kerrors.CodeConfiguration, "documents directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kerrors.New(kerrors.CodeConfiguration, "create documents directory", err).WithContext("dir", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// List returns the stored documents sorted by name. Extraction files and
// annotated images are not listed.
func (s *Store) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, kerrors.New(kerrors.CodeInternal, "read documents directory", err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	annotated := s.annotatedSet(entries)

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, extractionSuffix) || strings.HasPrefix(name, ".") || annotated[name] {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Name:          name,
			Size:          fi.Size(),
			ModifiedAt:    fi.ModTime().UTC(),
			HasExtraction: names[name+extractionSuffix],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) annotatedSet(entries []fs.DirEntry) map[string]bool {
	set := map[string]bool{}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), extractionSuffix) {
			continue
		}
		ext, err := s.readExtraction(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		for _, img := range ext.AnnotatedImages {
			set[filepath.Base(img)] = true
		}
	}
	return set
}

// Save writes a document from r. Replacing a document with different
// bytes drops its cached extraction.
func (s *Store) Save(_ context.Context, name string, r io.Reader) (Info, error) {
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, kerrors.New(kerrors.CodeInvalidInput, "read document", err)
	}
	path := filepath.Join(s.dir, name)
	if old, err := os.ReadFile(path); err == nil && !bytes.Equal(old, data) {
		if err := s.dropExtraction(name); err != nil {
			return Info{}, err
		}
	}
	if err := writeAtomic(path, data); err != nil {
		return Info{}, err
	}
	return Info{Name: name, Size: int64(len(data)), ModifiedAt: time.Now().UTC()}, nil
}

// Read returns the document bytes and their MIME type.
func (s *Store) Read(_ context.Context, name string) ([]byte, string, error) {
	if err := ValidateName(name); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", notFound(name)
	}
	if err != nil {
		return nil, "", kerrors.New(kerrors.CodeInternal, "read document", err)
	}
	return data, MIMEType(name), nil
}

// Delete removes a document, its extraction and its annotated images.
// Deleting a document that has neither file returns a not found error.
func (s *Store) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	removed := false
	jsonPath := filepath.Join(s.dir, name+extractionSuffix)
	s.removeAnnotated(jsonPath)
	for _, p := range []string{filepath.Join(s.dir, name), jsonPath} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, fs.ErrNotExist):
			return kerrors.New(kerrors.CodeInternal, "delete document", err).WithContext("path", p)
		}
	}
	if !removed {
		return notFound(name)
	}
	return nil
}

func (s *Store) removeAnnotated(jsonPath string) {
	ext, err := s.readExtraction(jsonPath)
	if err != nil {
		return
	}
	for _, img := range ext.AnnotatedImages {
		base := filepath.Base(img)
		if ValidateName(base) == nil {
			_ = os.Remove(filepath.Join(s.dir, base))
		}
	}
}

// dropExtraction removes the cached extraction of name and its annotated
// images. A missing cache is not an error.
func (s *Store) dropExtraction(name string) error {
	jsonPath := filepath.Join(s.dir, name+extractionSuffix)
	s.removeAnnotated(jsonPath)
	if err := os.Remove(jsonPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return kerrors.New(kerrors.CodeInternal, "drop stale extraction", err).WithContext("path", jsonPath)
	}
	return nil
}

// Data returns the cached extraction of a document.
func (s *Store) Data(_ context.Context, name string) (*Extraction, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	ext, err := s.readExtraction(filepath.Join(s.dir, name+extractionSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, kerrors.New(kerrors.CodeNotFound, "no extraction for document", err).WithContext("document", name)
	}
	return ext, err
}

// SaveExtraction caches ext under its document name.
func (s *Store) SaveExtraction(_ context.Context, ext *Extraction) error {
	if ext == nil {
		return kerrors.New(kerrors.CodeInvalidInput, "nil extraction", nil)
	}
	if err := ValidateName(ext.Document); err != nil {
		return err
	}
	normalize(ext)
	data, err := json.MarshalIndent(ext, "", "  ")
	if err != nil {
		return kerrors.New(kerrors.CodeInternal, "encode extraction", err)
	}
	return writeAtomic(filepath.Join(s.dir, ext.Document+extractionSuffix), data)
}

func (s *Store) readExtraction(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, kerrors.New(kerrors.CodeInternal, "read extraction", err)
	}
	var ext Extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, kerrors.New(kerrors.CodeMalformedResponse, "decode extraction", err).WithContext("path", path)
	}
	normalize(&ext)
	return &ext, nil
}

// normalize replaces nil collections so the JSON file always carries
// every key.
func normalize(ext *Extraction) {
	if ext.Fields == nil {
		ext.Fields = map[string]any{}
	}
	if ext.AnnotatedImages == nil {
		ext.AnnotatedImages = []string{}
	}
	if ext.Traces == nil {
		ext.Traces = []Trace{}
	}
	if ext.Boxes == nil {
		ext.Boxes = []Box{}
	}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return kerrors.New(kerrors.CodeInternal, "create temp file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return kerrors.New(kerrors.CodeInternal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return kerrors.New(kerrors.CodeInternal, "close temp file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return kerrors.New(kerrors.CodeInternal, "rename temp file", err)
	}
	return nil
}

// ValidateName accepts plain file names without directories. Names ending
// in the extraction suffix are reserved for cached extractions.
func ValidateName(name string) error {
	if err := builtin.ValidateFileName(name); err != nil {
		return err
	}
	if strings.HasPrefix(name, ".") {
		return kerrors.New(kerrors.CodeInvalidInput, "document name must not start with a dot", nil)
	}
	if strings.HasSuffix(strings.ToLower(name), extractionSuffix) {
		return kerrors.New(kerrors.CodeInvalidInput, "document name must not end in "+extractionSuffix, nil).
			WithContext("document", name)
	}
	return nil
}

// MIMEType guesses a document's MIME type from its extension.
func MIMEType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if base, _, ok := strings.Cut(t, ";"); ok {
			return base
		}
		return t
	}
	return "application/octet-stream"
}

func notFound(name string) error {
	return kerrors.New(kerrors.CodeNotFound, "document not found", nil).WithContext("document", name)
}
