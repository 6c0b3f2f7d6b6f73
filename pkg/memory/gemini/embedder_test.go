package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

type fakeEmbed struct {
	cfg  *genai.EmbedContentConfig
	drop bool
}

func (f *fakeEmbed) EmbedContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.cfg = cfg
	resp := &genai.EmbedContentResponse{}
	for i := range contents {
		if f.drop && i > 0 {
			break
		}
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: []float32{float32(i), 1}})
	}
	return resp, nil
}

func TestEmbedBatch(t *testing.T) {
	f := &fakeEmbed{}
	e := NewWithModels(f, "", WithDimensions(256), WithTaskType("RETRIEVAL_DOCUMENT"))

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 1 {
		t.Fatalf("unexpected vectors %v", vecs)
	}
	if f.cfg.OutputDimensionality == nil || *f.cfg.OutputDimensionality != 256 {
		t.Fatalf("dimensions not forwarded")
	}
	if f.cfg.TaskType != "RETRIEVAL_DOCUMENT" {
		t.Fatalf("task type not forwarded")
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	e := NewWithModels(&fakeEmbed{drop: true}, "m")
	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); !kerrors.Is(err, kerrors.CodeMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}
