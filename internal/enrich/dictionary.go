package enrich

import (
	"context"
	"regexp"
	"sort"

	"github.com/DeafMist/fin-news-radar/internal/market"
	"github.com/DeafMist/fin-news-radar/internal/models"
)

type term struct {
	name string
	re   *regexp.Regexp
}

// Dictionary recognises entities by whole-word, case-insensitive matching
// against the market reference lists. Sectors are inferred from the companies
// found and from sector names mentioned directly.
type Dictionary struct {
	companies  []term
	regulators []term
	sectors    []term
}

// NewDictionary compiles the market reference lists.
func NewDictionary() *Dictionary {
	return &Dictionary{
		companies:  compileTerms(market.Companies),
		regulators: compileTerms(market.Regulators),
		sectors:    compileTerms(market.Sectors()),
	}
}

func compileTerms(names []string) []term {
	out := make([]term, 0, len(names))
	for _, n := range names {
		out = append(out, term{
			name: n,
			re:   regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(n) + `($|[^\p{L}\p{N}])`),
		})
	}
	return out
}

// Extract implements EntityExtractor. Every returned set is sorted.
func (d *Dictionary) Extract(ctx context.Context, text string) (models.Entities, error) {
	if err := ctx.Err(); err != nil {
		return models.Entities{}, err
	}

	companies := match(d.companies, text)
	regulators := match(d.regulators, text)

	sectorSet := make(map[string]struct{})
	for _, c := range companies {
		if s, ok := market.SectorOf(c); ok {
			sectorSet[s] = struct{}{}
		}
	}
	for _, s := range match(d.sectors, text) {
		sectorSet[s] = struct{}{}
	}

	return models.Entities{
		Companies:  companies,
		Sectors:    sortedKeys(sectorSet),
		Regulators: regulators,
	}, nil
}

func match(terms []term, text string) []string {
	var out []string
	for _, t := range terms {
		if t.re.MatchString(text) {
			out = append(out, t.name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
