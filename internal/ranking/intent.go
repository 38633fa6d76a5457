package ranking

import (
	"sort"
	"strings"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

// intentSet indexes the intent's entities by lower-cased name, per kind.
type intentSet struct {
	companies  map[string]string
	sectors    map[string]string
	regulators map[string]string
	size       int
}

type matches struct {
	companies  []string
	sectors    []string
	regulators []string
}

func (m matches) count() int {
	return len(m.companies) + len(m.sectors) + len(m.regulators)
}

func newIntentSet(intent models.StructuredIntent) intentSet {
	s := intentSet{
		companies:  index(intent.Companies),
		sectors:    index(intent.Sectors),
		regulators: index(intent.Regulators),
	}
	s.size = len(s.companies) + len(s.sectors) + len(s.regulators)
	return s
}

func index(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, ok := out[key]; !ok {
			out[key] = n
		}
	}
	return out
}

// match returns the intent entities present in e, in the intent's spelling.
func (s intentSet) match(e models.Entities) matches {
	return matches{
		companies:  intersect(s.companies, e.Companies),
		sectors:    intersect(s.sectors, e.Sectors),
		regulators: intersect(s.regulators, e.Regulators),
	}
}

func intersect(wanted map[string]string, have []string) []string {
	if len(wanted) == 0 || len(have) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(have))
	var out []string
	for _, h := range have {
		key := strings.ToLower(strings.TrimSpace(h))
		name, ok := wanted[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
