package hostfunc

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
)

// kvRegistry returns a registry with a fresh store bound, the way a kernel
// worker sees it.
func kvRegistry(cfg KVConfig, opts ...KVOption) *Registry {
	r := NewRegistry()
	NewKV(cfg, opts...).Register(r)
	return r
}

func TestKVRoundTrip(t *testing.T) {
	r := kvRegistry(DefaultKVConfig())
	ctx := context.Background()

	values := []any{"bar", float64(3), true, []any{"x", float64(1)}, map[string]any{"n": nil}}
	for i, v := range values {
		key := fmt.Sprintf("k%d", i)
		if _, err := r.Call(ctx, "kv_set", map[string]any{"key": key, "value": v}); err != nil {
			t.Fatalf("kv_set %s: %v", key, err)
		}
		got, err := r.Call(ctx, "kv_get", map[string]any{"key": key})
		if err != nil {
			t.Fatalf("kv_get %s: %v", key, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(v) {
			t.Errorf("%s: expected %v, got %v", key, v, got)
		}
	}
}

func TestKVGetDefault(t *testing.T) {
	r := kvRegistry(DefaultKVConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want any
	}{
		{"missing without default", map[string]any{"key": "missing"}, nil},
		{"missing with default", map[string]any{"key": "missing", "default": "fallback"}, "fallback"},
		{"present ignores default", map[string]any{"key": "here", "default": "fallback"}, "value"},
	}

	r.Call(ctx, "kv_set", map[string]any{"key": "here", "value": "value"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Call(ctx, "kv_get", tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestKVKeysSortedAfterDelete(t *testing.T) {
	r := kvRegistry(DefaultKVConfig())
	ctx := context.Background()

	for _, k := range []string{"zeta", "alpha", "mid"} {
		r.Call(ctx, "kv_set", map[string]any{"key": k, "value": k})
	}
	if _, err := r.Call(ctx, "kv_delete", map[string]any{"key": "mid"}); err != nil {
		t.Fatalf("kv_delete: %v", err)
	}
	// Deleting twice is not an error.
	if _, err := r.Call(ctx, "kv_delete", map[string]any{"key": "mid"}); err != nil {
		t.Fatalf("second kv_delete: %v", err)
	}

	got, err := r.Call(ctx, "kv_keys", nil)
	if err != nil {
		t.Fatalf("kv_keys: %v", err)
	}
	if keys := got.([]string); !slices.Equal(keys, []string{"alpha", "zeta"}) {
		t.Errorf("expected [alpha zeta], got %v", keys)
	}
}

func TestKVRejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		r    *Registry
		fn   string
		args map[string]any
	}{
		{"get without key", kvRegistry(DefaultKVConfig()), "kv_get", map[string]any{}},
		{"get with non-string key", kvRegistry(DefaultKVConfig()), "kv_get", map[string]any{"key": 1}},
		{"set without value", kvRegistry(DefaultKVConfig()), "kv_set", map[string]any{"key": "k"}},
		{"delete without key", kvRegistry(DefaultKVConfig()), "kv_delete", nil},
		{"key too large", kvRegistry(KVConfig{}, WithMaxKeySize(4)), "kv_set", map[string]any{"key": "toolong", "value": 1}},
		{"value too large", kvRegistry(KVConfig{}, WithMaxValueSize(4)), "kv_set", map[string]any{"key": "k", "value": "too large"}},
		{"unserializable value", kvRegistry(KVConfig{}, WithMaxValueSize(64)), "kv_set", map[string]any{"key": "k", "value": make(chan int)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.r.Call(ctx, tt.fn, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestKVMaxEntries(t *testing.T) {
	r := kvRegistry(KVConfig{}, WithMaxEntries(2))
	ctx := context.Background()

	r.Call(ctx, "kv_set", map[string]any{"key": "a", "value": 1})
	r.Call(ctx, "kv_set", map[string]any{"key": "b", "value": 2})

	if _, err := r.Call(ctx, "kv_set", map[string]any{"key": "c", "value": 3}); err == nil {
		t.Error("expected store full error")
	}
	if _, err := r.Call(ctx, "kv_set", map[string]any{"key": "a", "value": 10}); err != nil {
		t.Errorf("overwrite should not count as a new entry: %v", err)
	}

	r.Call(ctx, "kv_delete", map[string]any{"key": "b"})
	if _, err := r.Call(ctx, "kv_set", map[string]any{"key": "c", "value": 3}); err != nil {
		t.Errorf("delete should free an entry: %v", err)
	}
}

func TestKVSharedAcrossRegistries(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	first, second := NewRegistry(), NewRegistry()
	kv.Register(first)
	kv.Register(second)
	ctx := context.Background()

	first.Call(ctx, "kv_set", map[string]any{"key": "shared", "value": "yes"})
	got, _ := second.Call(ctx, "kv_get", map[string]any{"key": "shared"})
	if got != "yes" {
		t.Errorf("expected value visible through second registry, got %v", got)
	}
}

func TestKVConcurrent(t *testing.T) {
	kv := NewKV(DefaultKVConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%10)
			kv.Set(ctx, map[string]any{"key": key, "value": n})
			kv.Get(ctx, map[string]any{"key": key})
			kv.Keys(ctx, nil)
		}(i)
	}
	wg.Wait()

	keys, _ := kv.Keys(ctx, nil)
	if n := len(keys.([]string)); n != 10 {
		t.Errorf("expected 10 keys, got %d", n)
	}
}
