package match

import (
	"context"
	"math"
)

// TextEmbedder turns texts into vectors for the semantic layer. Injected at
// construction; absence degrades the layer to a no-op. Term-label vectors
// are computed once at startup and cached for the engine's lifetime.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NoEmbedder is the null backend: the semantic layer never fires.
type NoEmbedder struct{}

func (NoEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

// cosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either has no magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
