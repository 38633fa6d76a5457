// Package ranking scores story clusters against a structured query intent.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// Default component weights.
const (
	DefaultSemanticWeight = 0.65
	DefaultEntityWeight   = 0.35
)

// ErrInvalidWeights rejects negative weights or weights that cannot produce a score.
var ErrInvalidWeights = errors.New("invalid ranking weights")

// Weights balance the semantic and entity-overlap components.
type Weights struct {
	Semantic float64
	Entity   float64
}

// DefaultWeights returns the default weighting.
func DefaultWeights() Weights {
	return Weights{Semantic: DefaultSemanticWeight, Entity: DefaultEntityWeight}
}

// Validate checks that both weights are non-negative and at least one is positive.
func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Entity < 0 || w.Semantic+w.Entity == 0 {
		return fmt.Errorf("%w: semantic=%v entity=%v", ErrInvalidWeights, w.Semantic, w.Entity)
	}
	return nil
}

// Outcome is an ordered result list. Partial is set when the context expired
// before every story was scored; Results then holds the stories scored so far.
type Outcome struct {
	Results []models.SearchResult
	Partial bool
}

// Ranker scores snapshots. It holds no mutable state and is safe for concurrent use.
type Ranker struct {
	weights  Weights
	minScore float64
}

// New returns a Ranker. Stories scoring below minScore are dropped in addition
// to those scoring zero.
func New(weights Weights, minScore float64) (*Ranker, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{weights: weights, minScore: minScore}, nil
}

// Rank orders the stories of snap by relevance to intent and queryVector.
//
// An intent with neither entities nor lexical keywords matches nothing. Results
// are ordered by score, then by the most recent representative, then by cluster ID.
func (r *Ranker) Rank(ctx context.Context, intent models.StructuredIntent, queryVector []float64, snap cluster.Snapshot) (Outcome, error) {
	if !intent.HasEntities() && !intent.HasLexicalSignal() {
		return Outcome{}, nil
	}
	if len(queryVector) == 0 {
		return Outcome{}, fmt.Errorf("rank: query %w", vector.ErrEmpty)
	}

	wanted := newIntentSet(intent)
	var out Outcome
	for _, story := range snap.Stories {
		if ctx.Err() != nil {
			out.Partial = true
			break
		}

		res, ok, err := r.score(wanted, queryVector, story)
		if err != nil {
			return Outcome{}, fmt.Errorf("rank cluster %d: %w", story.Cluster.ID, err)
		}
		if ok {
			out.Results = append(out.Results, res)
		}
	}

	Sort(out.Results)
	return out, nil
}

func (r *Ranker) score(wanted intentSet, queryVector []float64, story cluster.Story) (models.SearchResult, bool, error) {
	semantic, err := vector.Cosine(queryVector, story.Cluster.Centroid)
	if err != nil {
		return models.SearchResult{}, false, err
	}
	semantic = math.Max(0, semantic)

	matched := wanted.match(story.Representative.Entities)
	overlap := 0.0
	if wanted.size > 0 {
		overlap = float64(matched.count()) / float64(wanted.size)
	}

	score := r.weights.Semantic*semantic + r.weights.Entity*overlap
	if score <= 0 || score < r.minScore {
		return models.SearchResult{}, false, nil
	}

	return models.SearchResult{
		ClusterID:      story.Cluster.ID,
		Score:          score,
		Semantic:       semantic,
		EntityOverlap:  overlap,
		Explanation:    Explain(matched.companies, matched.sectors, matched.regulators, semantic),
		Representative: story.Representative,
		Members:        story.Cluster.Size(),
	}, true, nil
}

// Sort orders results by score descending, then representative publication date
// descending, then cluster ID ascending, and renumbers ranks from 1.
func Sort(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Representative.PublishedAt.Equal(b.Representative.PublishedAt) {
			return a.Representative.PublishedAt.After(b.Representative.PublishedAt)
		}
		return a.ClusterID < b.ClusterID
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

// Explain describes the non-zero score components, e.g.
// "matched companies: HDFC Bank; matched sectors: Banking; semantic similarity 91%".
func Explain(companies, sectors, regulators []string, semantic float64) string {
	var parts []string
	if len(companies) > 0 {
		parts = append(parts, "matched companies: "+strings.Join(companies, ", "))
	}
	if len(sectors) > 0 {
		parts = append(parts, "matched sectors: "+strings.Join(sectors, ", "))
	}
	if len(regulators) > 0 {
		parts = append(parts, "matched regulators: "+strings.Join(regulators, ", "))
	}
	if semantic > 0 {
		pct := math.Round(semantic * 100)
		if pct < 1 {
			parts = append(parts, "semantic similarity <1%")
		} else {
			parts = append(parts, fmt.Sprintf("semantic similarity %.0f%%", pct))
		}
	}
	return strings.Join(parts, "; ")
}
