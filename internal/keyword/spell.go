package keyword

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Suggestion is a candidate correction for one query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
}

// SpellChecker proposes corrections for query terms missing from the catalog
// vocabulary. The vocabulary is loaded lazily and reloaded after Invalidate.
type SpellChecker struct {
	dict        TermDictionary
	maxDistance int
	minFreq     int

	mu    sync.RWMutex
	terms []string
	set   map[string]struct{}
	valid bool
}

// SpellOption configures a SpellChecker.
type SpellOption func(*SpellChecker)

// WithMaxDistance sets the largest edit distance considered (default 2).
func WithMaxDistance(d int) SpellOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores candidates found in fewer than f records (default 1).
func WithMinFrequency(f int) SpellOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// NewSpellChecker creates a spell checker over dict.
func NewSpellChecker(dict TermDictionary, opts ...SpellOption) *SpellChecker {
	s := &SpellChecker{dict: dict, maxDistance: 2, minFreq: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate marks the vocabulary stale.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *SpellChecker) load() ([]string, map[string]struct{}, error) {
	s.mu.RLock()
	if s.valid {
		defer s.mu.RUnlock()
		return s.terms, s.set, nil
	}
	s.mu.RUnlock()

	terms, err := s.dict.GetAllTerms()
	if err != nil {
		return nil, nil, err
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}
	s.mu.Lock()
	s.terms, s.set, s.valid = terms, set, true
	s.mu.Unlock()
	return terms, set, nil
}

// Suggest returns candidates for term within the maximum edit distance, closest
// first and then most frequent.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	terms, _, err := s.load()
	if err != nil {
		return nil
	}
	term = strings.ToLower(term)
	n := utf8.RuneCountInString(term)
	var out []Suggestion
	for _, cand := range terms {
		lc := strings.ToLower(cand)
		if lc == term {
			continue
		}
		if d := utf8.RuneCountInString(lc) - n; d > s.maxDistance || -d > s.maxDistance {
			continue
		}
		dist := EditDistance(term, lc)
		if dist > s.maxDistance {
			continue
		}
		freq, err := s.dict.GetTermFrequency(cand)
		if err != nil || freq < s.minFreq {
			continue
		}
		out = append(out, Suggestion{Term: cand, Distance: dist, Frequency: freq})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Correct replaces each unknown term of query with its best suggestion. Terms
// shorter than three runes are never corrected. The query is returned unchanged
// when nothing is corrected or the vocabulary cannot be read.
func (s *SpellChecker) Correct(query string) string {
	_, set, err := s.load()
	if err != nil {
		return query
	}
	terms := tokenizeQuery(query)
	changed := false
	for i, t := range terms {
		if _, ok := set[t]; ok || utf8.RuneCountInString(t) < 3 {
			continue
		}
		if sugg := s.Suggest(t); len(sugg) > 0 {
			terms[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query
	}
	return strings.Join(terms, " ")
}

// EditDistance returns the Levenshtein distance between a and b in runes.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
