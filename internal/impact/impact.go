// Package impact maps an article's entities to the stocks it is likely to move.
package impact

import (
	"sort"

	"github.com/DeafMist/fin-news-radar/internal/market"
	"github.com/DeafMist/fin-news-radar/internal/models"
)

// Kinds of impact, strongest first.
const (
	KindDirect     = "direct"
	KindSector     = "sector"
	KindRegulatory = "regulatory"
)

const (
	directConfidence = 1.0
	sectorConfidence = 0.7
)

// Impact is one affected stock.
type Impact struct {
	Symbol     string  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Kind       string  `json:"type"`
	// Cause names the company, sector or regulator behind the impact.
	Cause string `json:"cause"`
}

// Analyze returns one impact per affected symbol, keeping the highest-confidence
// reason when several apply, sorted by symbol.
func Analyze(e models.Entities) []Impact {
	best := make(map[string]Impact)
	consider := func(imp Impact) {
		if cur, ok := best[imp.Symbol]; !ok || imp.Confidence > cur.Confidence {
			best[imp.Symbol] = imp
		}
	}

	for _, c := range e.Companies {
		if sym, ok := market.SymbolOf(c); ok {
			consider(Impact{Symbol: sym, Confidence: directConfidence, Kind: KindDirect, Cause: c})
		}
	}
	for _, s := range e.Sectors {
		for _, sym := range market.StocksIn(s) {
			consider(Impact{Symbol: sym, Confidence: sectorConfidence, Kind: KindSector, Cause: s})
		}
	}
	for _, r := range e.Regulators {
		conf := market.RegulatorConfidence(r)
		for _, sym := range market.RegulatedStocks {
			consider(Impact{Symbol: sym, Confidence: conf, Kind: KindRegulatory, Cause: r})
		}
	}

	if len(best) == 0 {
		return nil
	}
	out := make([]Impact, 0, len(best))
	for _, imp := range best {
		out = append(out, imp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
