package enrich

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/DeafMist/fin-news-radar/internal/processing"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// DefaultHashingDimensions is the vector size of the hashing embedder.
const DefaultHashingDimensions = 256

// Hashing is an offline embedder that maps unigrams and bigrams into a fixed
// number of buckets with a signed hash. Texts sharing vocabulary land close
// together; it carries no semantics beyond that.
type Hashing struct {
	dim int
}

// NewHashing returns a hashing embedder producing dim-sized vectors.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDimensions
	}
	return &Hashing{dim: dim}
}

// Embed implements Embedder. Text without any token embeds to the zero vector.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(processing.CleanText(text)))
	out := make([]float64, h.dim)
	prev := ""
	for _, tok := range tokens {
		if processing.IsStopword(tok) {
			prev = ""
			continue
		}
		h.add(out, tok, 1)
		if prev != "" {
			h.add(out, prev+" "+tok, 0.5)
		}
		prev = tok
	}
	return vector.Normalize(out), nil
}

func (h *Hashing) add(out []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	out[idx] += weight
}
