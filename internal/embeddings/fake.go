package embeddings

import (
	"context"
	"hash/fnv"
	"math"
)

// Fake is a deterministic in-process provider for tests. Texts sharing
// words produce nearby vectors, so similarity ordering is meaningful
// without a model.
type Fake struct {
	Dim  int
	Fail error // returned from every call when set
}

var _ Provider = (*Fake)(nil)

// NewFake returns a fake provider of the given dimensionality.
func NewFake(dim int) *Fake {
	return &Fake{Dim: dim}
}

// Name returns the provider name.
func (f *Fake) Name() string { return "fake" }

// Dimension returns the configured dimension.
func (f *Fake) Dimension() int { return f.Dim }

// Embed produces a unit vector derived from hashes of the text's bytes.
func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	if f.Fail != nil {
		return nil, f.Fail
	}
	vec := make([]float64, f.Dim)
	h := fnv.New64a()
	for i := 0; i+2 < len(text); i++ {
		h.Reset()
		_, _ = h.Write([]byte(text[i : i+3]))
		vec[h.Sum64()%uint64(f.Dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, f.Dim)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch applies Embed to each text.
func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
