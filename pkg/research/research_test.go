package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/agent"
	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/session"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     []string
		fallback bool
	}{
		{"plain", `["AMD","INTC","QCOM"]`, []string{"AMD", "INTC", "QCOM"}, false},
		{"wrapped", "Sure!\n```json\n[\"amd\", \" avgo \"]\n```", []string{"AMD", "AVGO"}, false},
		{"multiline", "[\n \"TSM\",\n \"BRK.B\"\n]", []string{"TSM", "BRK.B"}, false},
		{"drops invalid", `["AMD","not a ticker","TOOLONGX","AMD"]`, []string{"AMD"}, false},
		{"no list", "I could not find competitors.", DefaultPeers, true},
		{"bad json", `[AMD, INTC]`, DefaultPeers, true},
		{"numbers", `[1, 2]`, DefaultPeers, true},
		{"nothing valid", `["", "12"]`, DefaultPeers, true},
		{"empty", "", DefaultPeers, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := ParsePeers(tt.text)
			if fallback != tt.fallback {
				t.Fatalf("fallback = %v, want %v", fallback, tt.fallback)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("peers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePeersReturnsCopy(t *testing.T) {
	got, _ := ParsePeers("none")
	got[0] = "XXX"
	if DefaultPeers[0] != "AMD" {
		t.Fatalf("fallback list was mutated")
	}
}

// fakeMarket answers each step based on its system instruction.
type fakeMarket struct {
	discovery     string
	failDiscovery bool
	failFor       string

	mu         sync.Mutex
	aggregated string
}

func (f *fakeMarket) chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	system := req.Messages[0].Content
	switch {
	case strings.Contains(system, "closest publicly traded competitors"):
		if f.failDiscovery {
			return nil, errors.New("discovery unavailable")
		}
		return &llm.ChatResponse{Content: f.discovery}, nil
	case strings.Contains(system, "equity analyst covering"):
		t := strings.TrimSuffix(strings.Fields(system)[6], ".")
		if t == f.failFor {
			return nil, errors.New("quota exceeded")
		}
		return &llm.ChatResponse{Content: "profile of " + t}, nil
	case strings.Contains(system, "senior research editor"):
		f.mu.Lock()
		f.aggregated = system
		f.mu.Unlock()
		return &llm.ChatResponse{Content: "REPORT"}, nil
	}
	return nil, errors.New("unexpected prompt: " + system)
}

func TestPipelineRun(t *testing.T) {
	fm := &fakeMarket{discovery: `["AMD","INTC"]`, failFor: "INTC"}
	p, err := New(&llm.MockProvider{ChatFunc: fm.chat}, WithMaxConcurrency(2))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	inv := agent.NewInvocation(nil, "nvda", nil)
	if err := p.Run(context.Background(), inv); err != nil {
		t.Fatalf("run: %v", err)
	}

	state := inv.State()
	if state.GetString(KeyTicker) != "NVDA" {
		t.Fatalf("ticker not normalized: %q", state.GetString(KeyTicker))
	}
	if state.GetString(KeyFinalReport) != "REPORT" {
		t.Fatalf("final report missing")
	}
	if state.GetString(AnalysisKey("NVDA")) != "profile of NVDA" || state.GetString(AnalysisKey("AMD")) != "profile of AMD" {
		t.Fatalf("analyses missing: %v", state.Snapshot())
	}
	if v, ok := state.Get(AnalysisKey("INTC")); !ok || v != "" {
		t.Fatalf("failed analyst should leave an empty key, got %v (%v)", v, ok)
	}

	for _, want := range []string{"## NVDA\nprofile of NVDA", "## AMD\nprofile of AMD", "## INTC\n(analysis unavailable)"} {
		if !strings.Contains(fm.aggregated, want) {
			t.Errorf("aggregator prompt missing %q:\n%s", want, fm.aggregated)
		}
	}
}

func TestPipelineDiscoveryFallback(t *testing.T) {
	fm := &fakeMarket{discovery: "I am not sure."}
	p, _ := New(&llm.MockProvider{ChatFunc: fm.chat})
	inv := agent.NewInvocation(nil, "NVDA", nil)
	if err := p.Run(context.Background(), inv); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, peer := range DefaultPeers {
		if inv.State().GetString(AnalysisKey(peer)) == "" {
			t.Errorf("missing analysis for fallback peer %s", peer)
		}
	}
}

func TestPipelineRejectsBadTicker(t *testing.T) {
	p, _ := New(&llm.MockProvider{Response: "x"})
	err := p.Run(context.Background(), agent.NewInvocation(nil, "not a ticker!", nil))
	if !kerrors.Is(err, kerrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPipelineFollowUpTurn(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		failDiscovery bool
		wantTicker    string
		wantPeers     []string
	}{
		{"new ticker", "aapl", false, "AAPL", []string{"MSFT", "GOOGL"}},
		{"new ticker, discovery down", "AAPL", true, "AAPL", DefaultPeers},
		{"blank input reuses ticker", "  ", false, "NVDA", []string{"MSFT", "GOOGL"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeMarket{discovery: `["AMD","INTC"]`}
			p, err := New(&llm.MockProvider{ChatFunc: fm.chat})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			first := agent.NewInvocation(nil, "NVDA", nil)
			if err := p.Run(context.Background(), first); err != nil {
				t.Fatalf("first turn: %v", err)
			}

			fm.discovery = `["MSFT","GOOGL"]`
			fm.failDiscovery = tt.failDiscovery
			second := agent.NewInvocation(&session.Session{State: first.State().Snapshot()}, tt.input, nil)
			if err := p.Run(context.Background(), second); err != nil {
				t.Fatalf("second turn: %v", err)
			}

			state := second.State()
			if got := state.GetString(KeyTicker); got != tt.wantTicker {
				t.Fatalf("ticker = %q, want %q", got, tt.wantTicker)
			}
			if got := state.GetString(AnalysisKey(tt.wantTicker)); got != "profile of "+tt.wantTicker {
				t.Errorf("analysis of %s = %q", tt.wantTicker, got)
			}
			v, _ := state.Get(KeyPeers)
			peers, ok := v.([]string)
			if !ok || strings.Join(peers, ",") != strings.Join(tt.wantPeers, ",") {
				t.Fatalf("peers = %#v, want %v", v, tt.wantPeers)
			}
		})
	}
}
