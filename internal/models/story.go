package models

// StoryCluster groups articles judged to report the same event.
type StoryCluster struct {
	ID               int64     `json:"id"`
	Members          []string  `json:"members"`
	RepresentativeID string    `json:"representative_id"`
	Centroid         []float64 `json:"centroid"`

	// Updates counts incremental centroid updates since the last exact recomputation.
	Updates int `json:"updates"`
}

// Size returns the number of member articles.
func (c StoryCluster) Size() int {
	return len(c.Members)
}

// StructuredIntent is the entity-aware reading of a free-text query.
type StructuredIntent struct {
	Query      string   `json:"query"`
	Companies  []string `json:"companies"`
	Sectors    []string `json:"sectors"`
	Regulators []string `json:"regulators"`
	Tickers    []string `json:"tickers"`
	Keywords   []string `json:"keywords"`
}

// HasEntities reports whether any company, sector or regulator was recognised.
func (i StructuredIntent) HasEntities() bool {
	return len(i.Companies) > 0 || len(i.Sectors) > 0 || len(i.Regulators) > 0
}

// HasLexicalSignal reports whether the raw query still carries searchable words.
func (i StructuredIntent) HasLexicalSignal() bool {
	return len(i.Keywords) > 0
}

// SearchResult is one ranked story for a query.
type SearchResult struct {
	Rank           int     `json:"rank"`
	ClusterID      int64   `json:"cluster_id"`
	Score          float64 `json:"score"`
	Semantic       float64 `json:"semantic"`
	EntityOverlap  float64 `json:"entity_overlap"`
	Explanation    string  `json:"explanation"`
	Representative Article `json:"representative"`
	Members        int     `json:"members"`
}
