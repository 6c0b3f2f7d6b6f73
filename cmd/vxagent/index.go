// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/config"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/memory"
)

const defaultIndexBatch = 32

func runIndex(ctx context.Context, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("index", flag.ContinueOnError)
	file := cmd.String("file", "", "JSONL file, one {\"id\",\"text\",...} object per line")
	collection := cmd.String("collection", cfg.Vector.TextCollection, "Target collection")
	batch := cmd.Int("batch", defaultIndexBatch, "Documents embedded per request")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("index", err.Error())
	}
	if *file == "" {
		return NewInvalidArgumentError("--file", "required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	if a.embedder == nil {
		return kerrors.New(kerrors.CodeConfiguration, "indexing needs an embedder", nil).
			WithContext("embedder.provider", cfg.Embedder.Provider)
	}

	f, err := os.Open(*file)
	if err != nil {
		return kerrors.New(kerrors.CodeNotFound, "open index file", err).WithContext("path", *file)
	}
	defer f.Close()

	ix := memory.NewIndexer(a.vectors, a.embedder, *collection)
	if err := ix.Ensure(ctx); err != nil {
		return err
	}
	n, err := indexJSONL(ctx, ix, f, *batch)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "index.complete",
		slog.String("collection", *collection),
		slog.Int("documents", n))
	fmt.Printf("indexed %d documents into %s\n", n, *collection)
	return nil
}

// indexJSONL reads documents from r and indexes them in batches. The "id"
// and "text" fields fill the document; every other field becomes payload.
func indexJSONL(ctx context.Context, ix *memory.Indexer, r io.Reader, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultIndexBatch
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var pending []memory.Document
	total, line := 0, 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := ix.Index(ctx, pending...); err != nil {
			return err
		}
		total += len(pending)
		pending = pending[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return total, kerrors.New(kerrors.CodeInvalidInput, "decode document", err).WithContext("line", line)
		}
		pending = append(pending, doc)
		if len(pending) >= batch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, kerrors.New(kerrors.CodeInvalidInput, "read index file", err)
	}
	return total, flush()
}

func decodeDocument(raw []byte) (memory.Document, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return memory.Document{}, err
	}
	text, _ := fields["text"].(string)
	if text == "" {
		return memory.Document{}, fmt.Errorf("missing \"text\" field")
	}
	doc := memory.Document{Text: text}
	switch id := fields["id"].(type) {
	case string:
		doc.ID = id
	case float64:
		doc.ID = fmt.Sprintf("%d", int64(id))
	}
	delete(fields, "id")
	delete(fields, "text")
	if len(fields) > 0 {
		doc.Payload = fields
	}
	return doc, nil
}
