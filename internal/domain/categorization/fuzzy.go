package categorization

import (
	"sort"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
)

const (
	DefaultSuggestionLimit = 5
	// DefaultSuggestionThreshold is the similarity, in percent, a name must exceed.
	DefaultSuggestionThreshold = 50.0
)

// CounterpartySuggestion is one ranked counterparty name.
type CounterpartySuggestion struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
	Distance   int     `json:"distance"`
}

// Similarity is 100 * (1 - levenshtein(a, b) / max(len(a), len(b))) over the
// normalized strings. Two empty strings are identical.
func Similarity(a, b string) (float64, int) {
	na, nb := sniffer.Normalize(a), sniffer.Normalize(b)
	longest := utf8.RuneCountInString(na)
	if n := utf8.RuneCountInString(nb); n > longest {
		longest = n
	}
	if longest == 0 {
		return 100, 0
	}
	d := fuzzy.LevenshteinDistance(na, nb)
	return 100 * (1 - float64(d)/float64(longest)), d
}

// SuggestCounterparties ranks names by similarity to description and returns
// at most limit names whose similarity exceeds threshold.
func SuggestCounterparties(description string, names []string, limit int, threshold float64) []CounterpartySuggestion {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	var out []CounterpartySuggestion
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		sim, dist := Similarity(description, name)
		if sim > threshold {
			out = append(out, CounterpartySuggestion{Name: name, Similarity: sim, Distance: dist})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
