// Package embedtest provides a scriptable Embedder for tests.
package embedtest

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Embedder. Vectors come from Vectors by exact text,
// then from Func, then Default. Every EmbedBatch call is recorded.
type Fake struct {
	Vectors map[string][]float32
	Func    func(text string) []float32
	Default []float32
	Dims    int
	Model   string

	// Err, when set, is returned by every call
	Err error

	// Transform lets a test corrupt the batch result (wrong count, ragged vectors)
	Transform func(vecs [][]float32) [][]float32

	mu    sync.Mutex
	calls [][]string
}

// EmbedBatch implements embed.Embedder.
func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.vector(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	if f.Transform != nil {
		out = f.Transform(out)
	}
	return out, nil
}

func (f *Fake) vector(text string) ([]float32, error) {
	if v, ok := f.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	if f.Func != nil {
		return f.Func(text), nil
	}
	if f.Default != nil {
		return append([]float32(nil), f.Default...), nil
	}
	return nil, fmt.Errorf("embedtest: no vector for %q", text)
}

// Embed implements embed.Embedder.
func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions implements embed.Embedder.
func (f *Fake) Dimensions() int { return f.Dims }

// ModelName implements embed.Embedder.
func (f *Fake) ModelName() string {
	if f.Model == "" {
		return "fake"
	}
	return f.Model
}

// Available implements embed.Embedder.
func (f *Fake) Available(context.Context) bool { return f.Err == nil }

// Close implements embed.Embedder.
func (f *Fake) Close() error { return nil }

// Calls returns a copy of every recorded EmbedBatch input.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of EmbedBatch calls.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
