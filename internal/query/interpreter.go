// Package query turns free-text queries into structured intents.
package query

import (
	"context"
	"sort"
	"strings"

	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/market"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/processing"
)

// DefaultKeywordMinLen is the shortest token kept as lexical signal.
const DefaultKeywordMinLen = 3

// Interpreter extracts entities from a query and expands them with the static
// market tables.
type Interpreter struct {
	extractor     enrich.EntityExtractor
	keywordMinLen int
}

// NewInterpreter builds an Interpreter around extractor.
func NewInterpreter(extractor enrich.EntityExtractor, keywordMinLen int) *Interpreter {
	if keywordMinLen <= 0 {
		keywordMinLen = DefaultKeywordMinLen
	}
	return &Interpreter{extractor: extractor, keywordMinLen: keywordMinLen}
}

// Interpret builds the intent for text. Blank or entity-less text yields an
// intent with empty sets, not an error; extractor failures are reported as
// enrich.ErrUnavailable.
func (i *Interpreter) Interpret(ctx context.Context, text string) (models.StructuredIntent, error) {
	intent := models.StructuredIntent{Query: text}
	if strings.TrimSpace(text) == "" {
		return intent, nil
	}

	found, err := i.extractor.Extract(ctx, text)
	if err != nil {
		return models.StructuredIntent{}, enrich.Unavailable("interpret query", err)
	}

	intent.Companies = dedupe(found.Companies)
	intent.Regulators = dedupe(found.Regulators)
	intent.Sectors = Expand(intent.Companies, found.Sectors, intent.Regulators)
	intent.Tickers = Tickers(intent.Companies, intent.Sectors)
	intent.Keywords = processing.ExtractKeywords(text, 0, i.keywordMinLen)
	return intent, nil
}

// Expand returns sectors enriched with each company's primary sector and the
// sectors each regulator oversees.
func Expand(companies, sectors, regulators []string) []string {
	out := make([]string, 0, len(sectors)+len(companies))
	for _, s := range sectors {
		out = append(out, market.Canonical(s, market.Sectors()))
	}
	for _, c := range companies {
		if s, ok := market.SectorOf(c); ok {
			out = append(out, s)
		}
	}
	for _, r := range regulators {
		out = append(out, market.OverseenBy(r)...)
	}
	return dedupe(out)
}

// Tickers returns the symbols of companies plus the representative stocks of sectors.
func Tickers(companies, sectors []string) []string {
	var out []string
	for _, c := range companies {
		if s, ok := market.SymbolOf(c); ok {
			out = append(out, s)
		}
	}
	for _, s := range sectors {
		out = append(out, market.StocksIn(s)...)
	}
	return dedupe(out)
}

// dedupe returns the sorted distinct values of in, comparing case-insensitively
// and keeping the first spelling seen.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
