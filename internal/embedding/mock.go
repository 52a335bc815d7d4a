package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockClient produces deterministic embeddings without any external
// service. Each token is hashed into a handful of buckets, so texts that
// share tokens land near each other in cosine space. Intended for tests
// and local development.
type MockClient struct {
	dim int
}

func NewMockClient(dim int) *MockClient {
	if dim <= 0 {
		dim = 384
	}
	return &MockClient{dim: dim}
}

func (c *MockClient) Dim() int { return c.dim }

func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, c.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()[]{}")
		if token == "" {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum64()
		// Spread each token over three buckets with varied signs so
		// distinct tokens rarely cancel each other out.
		for i := 0; i < 3; i++ {
			bucket := int((seed >> (i * 16)) % uint64(c.dim))
			sign := float32(1)
			if (seed>>(i*16+15))&1 == 1 {
				sign = -1
			}
			vec[bucket] += sign
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// No usable tokens. Return a fixed unit vector so the result
		// is still valid input for cosine similarity.
		vec[0] = 1
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
