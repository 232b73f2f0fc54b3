package categorization

import (
	"sort"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
)

// Match is the winning rule for one description.
type Match struct {
	Rule       Rule
	Matched    int
	Total      int
	Confidence float64
	Patterns   []string
}

// Engine matches descriptions against every rule pattern in a single pass
// using an Aho-Corasick automaton. Patterns and descriptions are compared in
// normalized form (lowercase, punctuation collapsed).
type Engine struct {
	mu       sync.RWMutex
	matcher  *ahocorasick.Matcher
	rules    []Rule
	patterns []string
	// owners[i] lists the rule indexes that contain patterns[i]
	owners [][]int
	totals []int
}

// NewEngine builds an engine from rules.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build replaces the rule set. Disabled rules are dropped; rules are ordered
// by descending priority, keeping input order among equals.
func (e *Engine) Build(rules []Rule) {
	ordered := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsEnabled() {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	index := make(map[string]int)
	var patterns []string
	var owners [][]int
	totals := make([]int, len(ordered))

	for ri, r := range ordered {
		seen := make(map[string]bool)
		for _, raw := range r.Patterns {
			p := sniffer.Normalize(raw)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			totals[ri]++

			idx, ok := index[p]
			if !ok {
				idx = len(patterns)
				index[p] = idx
				patterns = append(patterns, p)
				owners = append(owners, nil)
			}
			owners[idx] = append(owners[idx], ri)
		}
	}

	var matcher *ahocorasick.Matcher
	if len(patterns) > 0 {
		matcher = ahocorasick.NewStringMatcher(patterns)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.matcher = matcher
	e.rules = ordered
	e.patterns = patterns
	e.owners = owners
	e.totals = totals
}

// Match returns the highest-priority matching rule, or nil.
func (e *Engine) Match(description string) *Match {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.match(description)
}

// MatchBatch matches many descriptions under one read lock.
func (e *Engine) MatchBatch(descriptions []string) []*Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*Match, len(descriptions))
	for i, d := range descriptions {
		results[i] = e.match(d)
	}
	return results
}

func (e *Engine) match(description string) *Match {
	if e.matcher == nil {
		return nil
	}
	text := sniffer.Normalize(description)
	if text == "" {
		return nil
	}

	hits := e.matcher.MatchThreadSafe([]byte(text))
	if len(hits) == 0 {
		return nil
	}

	counts := make(map[int]int)
	hitPatterns := make(map[int][]string)
	seen := make(map[int]bool, len(hits))
	best := -1
	for _, h := range hits {
		if seen[h] || h < 0 || h >= len(e.owners) {
			continue
		}
		seen[h] = true
		for _, ri := range e.owners[h] {
			counts[ri]++
			hitPatterns[ri] = append(hitPatterns[ri], e.patterns[h])
			// rules are sorted, so the lowest index is the highest priority
			if best == -1 || ri < best {
				best = ri
			}
		}
	}

	patterns := hitPatterns[best]
	sort.Strings(patterns)
	return &Match{
		Rule:       e.rules[best],
		Matched:    counts[best],
		Total:      e.totals[best],
		Confidence: float64(counts[best]) / float64(e.totals[best]) * 100,
		Patterns:   patterns,
	}
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// PatternCount returns the number of distinct normalized patterns.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// IsEmpty reports whether no rule can match.
func (e *Engine) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher == nil
}
