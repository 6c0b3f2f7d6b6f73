package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
)

type stepAgent struct {
	name string
	key  string
	fn   func(ctx context.Context, inv *Invocation) error
}

func (s *stepAgent) Name() string      { return s.name }
func (s *stepAgent) OutputKey() string { return s.key }
func (s *stepAgent) Run(ctx context.Context, inv *Invocation) error {
	return s.fn(ctx, inv)
}

func writer(name, key, value string) *stepAgent {
	return &stepAgent{name: name, key: key, fn: func(_ context.Context, inv *Invocation) error {
		inv.State().Set(key, value)
		return nil
	}}
}

func failing(name, key string, err error) *stepAgent {
	return &stepAgent{name: name, key: key, fn: func(context.Context, *Invocation) error { return err }}
}

func TestSequentialStopsAtFirstError(t *testing.T) {
	boom := kerrors.New(kerrors.CodeLLMError, "model failed", nil)
	ran := false
	seq := NewSequential("pipeline",
		writer("first", "a", "1"),
		failing("second", "b", boom),
		&stepAgent{name: "third", fn: func(context.Context, *Invocation) error {
			ran = true
			return nil
		}},
	)
	inv := newInvocation("go", nil, nil)
	err := seq.Run(context.Background(), inv)
	if !errors.Is(err, boom) {
		t.Fatalf("expected first child error, got %v", err)
	}
	if ran {
		t.Fatalf("third child should not run")
	}
	if inv.State().GetString("a") != "1" {
		t.Fatalf("state from earlier children must survive")
	}
	if len(seq.Children()) != 3 {
		t.Fatalf("unexpected children")
	}
}

func TestSequentialStateFlowsForward(t *testing.T) {
	seq := NewSequential("pipeline",
		writer("first", "status", "passed"),
		&stepAgent{name: "second", key: "out", fn: func(_ context.Context, inv *Invocation) error {
			inv.State().Set("out", "saw "+inv.State().GetString("status"))
			return nil
		}},
	)
	inv := newInvocation("go", nil, nil)
	if err := seq.Run(context.Background(), inv); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := inv.State().GetString("out"); got != "saw passed" {
		t.Fatalf("out = %q", got)
	}
	if d := inv.State().Delta(); len(d) != 2 {
		t.Fatalf("expected 2 delta keys, got %v", d)
	}
}

func TestParallelBranchFailureDegrades(t *testing.T) {
	par := NewParallel("analysts", []Agent{
		writer("NVDA", "analysis_NVDA", "strong"),
		failing("AMD", "analysis_AMD", errors.New("quota")),
		&stepAgent{name: "INTC", key: "analysis_INTC", fn: func(context.Context, *Invocation) error {
			panic("nil map")
		}},
	})
	c := &collector{}
	inv := newInvocation("go", nil, c)
	if err := par.Run(context.Background(), inv); err != nil {
		t.Fatalf("parallel run should not fail, got %v", err)
	}

	state := inv.State()
	if state.GetString("analysis_NVDA") != "strong" {
		t.Fatalf("healthy branch output missing")
	}
	for _, key := range []string{"analysis_AMD", "analysis_INTC"} {
		v, ok := state.Get(key)
		if !ok || v != "" {
			t.Fatalf("%s = %v (present %v), want empty string", key, v, ok)
		}
	}

	branches := map[string]Event{}
	for _, ev := range c.events {
		if ev.Type == EventError {
			branches[ev.Branch] = ev
		}
	}
	if len(branches) != 2 {
		t.Fatalf("expected 2 branch errors, got %+v", c.events)
	}
	if ev := branches["INTC"]; ev.ErrorCode != string(kerrors.CodeInternal) || ev.Terminal() {
		t.Fatalf("unexpected panic event %+v", ev)
	}
}

func TestParallelMaxConcurrency(t *testing.T) {
	var running, peak int32
	children := make([]Agent, 6)
	for i := range children {
		children[i] = &stepAgent{name: string(rune('a' + i)), fn: func(context.Context, *Invocation) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}}
	}
	par := NewParallel("group", children, WithMaxConcurrency(2))
	if err := par.Run(context.Background(), newInvocation("go", nil, nil)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", peak)
	}
}

func TestParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	par := NewParallel("group", []Agent{writer("a", "a", "1")})
	err := par.Run(ctx, newInvocation("go", nil, nil))
	if !kerrors.Is(err, kerrors.CodeTimeout) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}
