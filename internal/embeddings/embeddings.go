package embeddings

import (
	"context"
	"errors"
)

// Vector is a simple float32 slice wrapper.
type Vector []float32

// ErrDimensionMismatch is returned when two vectors of different lengths are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Embedder defines the embedding interface.
type Embedder interface {
	// Embed converts a single text into a vector. Used for chat queries.
	Embed(ctx context.Context, text string) (Vector, error)
	// EmbedBatch converts texts into vectors, one per input, order-preserving.
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Flatten concatenates per-chunk vectors into one long vector in order.
// The result is the document-level vector stored on the record.
func Flatten(vectors []Vector) Vector {
	var total int
	for _, v := range vectors {
		total += len(v)
	}
	out := make(Vector, 0, total)
	for _, v := range vectors {
		out = append(out, v...)
	}
	return out
}

// DotProduct computes the scalar product of two equal-length vectors.
func DotProduct(a, b Vector) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}
