package session

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	kerrors "github.com/jchavezar/vertex-ai-samples-sub001/pkg/errors"
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": sqlite,
	}
}

var testKey = Key{AppName: "app", UserID: "u1", SessionID: "s1"}

func TestCreateGetRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			initial := map[string]any{
				"ticker": "NVDA",
				"count":  int64(2),
				"big":    int64(9007199254740993),
				"ratio":  0.25,
				"nested": map[string]any{"ok": true, "id": int64(1<<62 + 1)},
				"list":   []any{"a", int64(3)},
			}
			if _, err := store.Create(ctx, testKey, initial); err != nil {
				t.Fatalf("create: %v", err)
			}
			got, err := store.Get(ctx, testKey)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !reflect.DeepEqual(got.State, initial) {
				t.Fatalf("state mismatch: %#v", got.State)
			}
		})
	}
}

func TestCreateReturnsExisting(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Create(ctx, testKey, map[string]any{"v": "first"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			again, err := store.Create(ctx, testKey, map[string]any{"v": "second"})
			if err != nil {
				t.Fatalf("create again: %v", err)
			}
			if again.State["v"] != "first" {
				t.Fatalf("existing session must be returned unchanged, got %v", again.State)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), testKey)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if !kerrors.Is(err, kerrors.CodeNotFound) {
				t.Fatalf("expected not found code, got %s", kerrors.CodeOf(err))
			}
		})
	}
}

func TestInvalidKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Create(context.Background(), Key{AppName: "app"}, nil)
			if !kerrors.Is(err, kerrors.CodeInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestMessagesAndState(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetOrCreate(ctx, testKey); err != nil {
				t.Fatalf("get or create: %v", err)
			}
			err := store.AppendMessages(ctx, testKey,
				Message{Role: llm.RoleUser, Content: "hi"},
				Message{Role: llm.RoleAssistant, Author: "assistant", Content: "hello"},
			)
			if err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := store.UpdateState(ctx, testKey, map[string]any{"a": "1"}); err != nil {
				t.Fatalf("update: %v", err)
			}
			if err := store.UpdateState(ctx, testKey, map[string]any{"a": "2", "b": "x"}); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := store.Get(ctx, testKey)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(got.Messages) != 2 || got.Messages[1].Content != "hello" || got.Messages[1].Author != "assistant" {
				t.Fatalf("unexpected messages %+v", got.Messages)
			}
			if got.Messages[0].ID == "" || got.Messages[0].CreatedAt.IsZero() {
				t.Fatalf("message id and timestamp should be filled in")
			}
			if got.State["a"] != "2" || got.State["b"] != "x" {
				t.Fatalf("unexpected state %v", got.State)
			}
		})
	}
}

func TestMissingSessionWrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.AppendMessages(ctx, testKey, Message{Content: "x"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("append: expected ErrNotFound, got %v", err)
			}
			if err := store.UpdateState(ctx, testKey, map[string]any{"a": 1}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("update: expected ErrNotFound, got %v", err)
			}
			if err := store.Delete(ctx, testKey); !errors.Is(err, ErrNotFound) {
				t.Fatalf("delete: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestReturnedSessionIsCopy(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess, err := store.Create(ctx, testKey, map[string]any{"nested": map[string]any{"k": "v"}})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			sess.State["added"] = true
			sess.State["nested"].(map[string]any)["k"] = "changed"

			got, _ := store.Get(ctx, testKey)
			if _, ok := got.State["added"]; ok {
				t.Fatalf("mutation leaked into store")
			}
			if got.State["nested"].(map[string]any)["k"] != "v" {
				t.Fatalf("nested mutation leaked into store")
			}
		})
	}
}

func TestListAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b"} {
				if _, err := store.Create(ctx, Key{AppName: "app", UserID: "u", SessionID: id}, nil); err != nil {
					t.Fatalf("create: %v", err)
				}
			}
			if _, err := store.Create(ctx, Key{AppName: "app", UserID: "other", SessionID: "c"}, nil); err != nil {
				t.Fatalf("create: %v", err)
			}
			list, err := store.List(ctx, "app", "u")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("expected 2 sessions, got %d", len(list))
			}
			if err := store.Delete(ctx, Key{AppName: "app", UserID: "u", SessionID: "a"}); err != nil {
				t.Fatalf("delete: %v", err)
			}
			list, _ = store.List(ctx, "app", "u")
			if len(list) != 1 || list[0].Key.SessionID != "b" {
				t.Fatalf("unexpected sessions after delete: %+v", list)
			}
		})
	}
}

func TestConcurrentStateUpdates(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Create(ctx, testKey, nil); err != nil {
				t.Fatalf("create: %v", err)
			}
			keys := []string{"analysis_AMD", "analysis_INTC", "analysis_AVGO", "analysis_NVDA"}
			var wg sync.WaitGroup
			for _, k := range keys {
				wg.Add(1)
				go func(k string) {
					defer wg.Done()
					if err := store.UpdateState(ctx, testKey, map[string]any{k: "done"}); err != nil {
						t.Errorf("update %s: %v", k, err)
					}
				}(k)
			}
			wg.Wait()
			got, _ := store.Get(ctx, testKey)
			for _, k := range keys {
				if got.State[k] != "done" {
					t.Errorf("missing %s in %v", k, got.State)
				}
			}
		})
	}
}

func TestDecodeStateNumbers(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]any
	}{
		{"integer above 2^53", `{"n":9007199254740993}`, map[string]any{"n": int64(9007199254740993)}},
		{"negative integer", `{"n":-42}`, map[string]any{"n": int64(-42)}},
		{"fraction", `{"n":1.5}`, map[string]any{"n": 1.5}},
		{"exponent", `{"n":1e3}`, map[string]any{"n": float64(1000)}},
		{"beyond int64", `{"n":18446744073709551616}`, map[string]any{"n": float64(18446744073709551616)}},
		{"nested", `{"m":{"l":[1,2.5]}}`, map[string]any{"m": map[string]any{"l": []any{int64(1), 2.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeState([]byte(tt.payload))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestUpdateStateKeepsIntegers(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Create(ctx, testKey, nil); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.UpdateState(ctx, testKey, map[string]any{"id": int64(9007199254740993)}); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, err := store.Get(ctx, testKey)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.State["id"] != int64(9007199254740993) {
				t.Fatalf("id = %#v", got.State["id"])
			}
		})
	}
}
