package models

import (
	"math"
	"time"
)

// Entities are the financial entities recognised in a text.
type Entities struct {
	Companies  []string `json:"companies"`
	Sectors    []string `json:"sectors"`
	Regulators []string `json:"regulators"`
}

// Empty reports whether no entity of any kind is present.
func (e Entities) Empty() bool {
	return len(e.Companies) == 0 && len(e.Sectors) == 0 && len(e.Regulators) == 0
}

// Sentiment is the positive/neutral/negative split of an article.
type Sentiment struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// NeutralSentiment is used when the upstream feed carries no sentiment.
var NeutralSentiment = Sentiment{Neutral: 1}

// IsZero reports whether no component was set.
func (s Sentiment) IsZero() bool {
	return s.Positive == 0 && s.Neutral == 0 && s.Negative == 0
}

// Valid checks every component lies in [0,1] and the triple sums to 1.
func (s Sentiment) Valid() bool {
	for _, v := range []float64{s.Positive, s.Neutral, s.Negative} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(s.Positive+s.Neutral+s.Negative-1) <= 1e-6
}

// Article is the canonical structure stored in the corpus.
// Embedding and Entities are immutable once enrichment has run.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Embedding   []float64 `json:"embedding"`
	Entities    Entities  `json:"entities"`
	Sentiment   Sentiment `json:"sentiment"`

	// Seq is the ingestion order assigned by the corpus.
	Seq       int64 `json:"seq"`
	ClusterID int64 `json:"cluster_id"`
}

// Text returns the text used for embedding and entity extraction.
func (a Article) Text() string {
	switch {
	case a.Title == "":
		return a.Body
	case a.Body == "":
		return a.Title
	default:
		return a.Title + " . " + a.Body
	}
}
