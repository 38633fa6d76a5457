// Package vector holds the similarity primitives shared by clustering and ranking.
package vector

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrEmpty is returned for zero-length input.
var ErrEmpty = errors.New("empty vector")

// Cosine returns the cosine similarity of a and b. A zero-norm vector has similarity 0 with everything.
func Cosine(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmpty
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}

	sim := floats.Dot(a, b) / (na * nb)
	// rounding can push identical vectors just past 1
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// IsZero reports whether v has zero norm. Empty vectors are zero.
func IsZero(v []float64) bool {
	return len(v) == 0 || floats.Norm(v, 2) == 0
}

// Normalize returns a unit-length copy of v. Zero vectors are returned as a zero copy.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	n := floats.Norm(out, 2)
	if n > 0 {
		floats.Scale(1/n, out)
	}
	return out
}

// SimilarityMatrix builds the symmetric pairwise cosine matrix of vectors.
func SimilarityMatrix(vectors [][]float64) (*mat.Dense, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrEmpty
	}

	data := make([]float64, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		data = append(data, Normalize(v)...)
	}

	rows := mat.NewDense(len(vectors), dim, data)
	var sim mat.Dense
	sim.Mul(rows, rows.T())

	n := len(vectors)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch x := sim.At(i, j); {
			case x > 1:
				sim.Set(i, j, 1)
			case x < -1:
				sim.Set(i, j, -1)
			}
		}
	}
	return &sim, nil
}

// Mean returns the arithmetic mean of vectors.
func Mean(vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmpty
	}
	dim := len(vectors[0])
	mean := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		floats.Add(mean, v)
	}
	floats.Scale(1/float64(len(vectors)), mean)
	return mean, nil
}

// UpdateMean folds x into a mean over n-1 vectors, giving the mean over n.
// The input slice is left untouched.
func UpdateMean(mean, x []float64, n int) ([]float64, error) {
	if len(mean) != len(x) {
		return nil, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(mean), len(x))
	}
	if n < 1 {
		return nil, fmt.Errorf("invalid count %d", n)
	}
	diff := make([]float64, len(x))
	floats.SubTo(diff, x, mean)

	out := make([]float64, len(mean))
	copy(out, mean)
	floats.AddScaled(out, 1/float64(n), diff)
	return out, nil
}
