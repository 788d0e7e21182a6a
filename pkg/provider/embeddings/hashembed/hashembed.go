// Package hashembed provides a deterministic, dependency-free embeddings
// provider used as the last rung of the embedder fallback ladder, when
// neither Ollama nor a hosted embedding API is reachable.
//
// Vectors are derived from repeated SHA-256 hashing of the whole input text:
// no semantic or lexical relationship between texts is preserved (texts that
// differ by one character get unrelated vectors), but the result is stable,
// fast, and needs no network
// access, so dense-vector search degrades gracefully instead of failing
// outright.
package hashembed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings"
)

const defaultDimensions = 256

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using a deterministic hash
// expansion in place of a real model.
type Provider struct {
	dimensions int
}

// New constructs a Provider producing vectors of the given dimensions. A
// non-positive value falls back to defaultDimensions.
func New(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Provider{dimensions: dimensions}
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return expand(text, p.dimensions), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = expand(t, p.dimensions)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "hashembed-sha256" }

// expand deterministically stretches a SHA-256 digest of text into dims
// float32 components in [-1, 1], one 32-bit word per output component. When a
// 32-byte block is used up, the next block is the SHA-256 of the previous
// block with the current output index appended as one byte.
func expand(text string, dims int) []float32 {
	seed := sha256.Sum256([]byte(text))
	out := make([]float32, dims)

	block := seed
	idx := 0
	for i := 0; i < dims; i++ {
		if idx >= len(block) {
			block = sha256.Sum256(append(block[:], byte(i)))
			idx = 0
		}
		if idx+4 > len(block) {
			block = sha256.Sum256(append(block[:], byte(i)))
			idx = 0
		}
		word := binary.LittleEndian.Uint32(block[idx : idx+4])
		idx += 4
		out[i] = (float32(word)/float32(^uint32(0)))*2 - 1
	}
	return out
}
