package keyword

import (
	"errors"
	"testing"
)

type mapDict struct {
	freqs map[string]int
	err   error
	loads int
}

func (d *mapDict) GetAllTerms() ([]string, error) {
	d.loads++
	if d.err != nil {
		return nil, d.err
	}
	terms := make([]string, 0, len(d.freqs))
	for t := range d.freqs {
		terms = append(terms, t)
	}
	return terms, nil
}

func (d *mapDict) GetTermFrequency(term string) (int, error) {
	return d.freqs[term], nil
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"café", "cafe", 1},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSpellChecker_Suggest(t *testing.T) {
	dict := &mapDict{freqs: map[string]int{"photovoltaic": 4, "efficiency": 9, "efficient": 2, "deficiency": 1}}
	s := NewSpellChecker(dict)

	got := s.Suggest("eficiency")
	if len(got) == 0 || got[0].Term != "efficiency" || got[0].Distance != 1 {
		t.Fatalf("Suggest(eficiency) = %+v", got)
	}
	for _, sg := range got {
		if sg.Distance > 2 {
			t.Errorf("suggestion %q beyond max distance", sg.Term)
		}
	}
	if got := s.Suggest("zzzzzz"); len(got) != 0 {
		t.Errorf("Suggest(zzzzzz) = %+v, want none", got)
	}
}

func TestSpellChecker_MinFrequency(t *testing.T) {
	dict := &mapDict{freqs: map[string]int{"rare": 1, "care": 5}}
	s := NewSpellChecker(dict, WithMinFrequency(2), WithMaxDistance(1))
	got := s.Suggest("bare")
	if len(got) != 1 || got[0].Term != "care" {
		t.Errorf("Suggest(bare) = %+v, want only care", got)
	}
}

func TestSpellChecker_Correct(t *testing.T) {
	dict := &mapDict{freqs: map[string]int{"solar": 3, "panel": 3, "efficiency": 2}}
	s := NewSpellChecker(dict)

	if got := s.Correct("Solar pannel eficiency"); got != "solar panel efficiency" {
		t.Errorf("Correct = %q", got)
	}
	if got := s.Correct("solar panel"); got != "solar panel" {
		t.Errorf("Correct of known terms = %q", got)
	}
	if got := s.Correct("qq"); got != "qq" {
		t.Errorf("short terms must not be corrected, got %q", got)
	}
}

func TestSpellChecker_InvalidateReloads(t *testing.T) {
	dict := &mapDict{freqs: map[string]int{"alpha": 1}}
	s := NewSpellChecker(dict)
	s.Suggest("alpah")
	s.Suggest("alpah")
	if dict.loads != 1 {
		t.Fatalf("loads = %d, want 1", dict.loads)
	}
	dict.freqs["gamma"] = 1
	s.Invalidate()
	if got := s.Correct("gamna"); got != "gamma" {
		t.Errorf("Correct after invalidate = %q", got)
	}
	if dict.loads != 2 {
		t.Errorf("loads = %d, want 2", dict.loads)
	}
}

func TestSpellChecker_DictionaryError(t *testing.T) {
	s := NewSpellChecker(&mapDict{err: errors.New("closed")})
	if got := s.Correct("anything"); got != "anything" {
		t.Errorf("Correct = %q", got)
	}
	if got := s.Suggest("anything"); got != nil {
		t.Errorf("Suggest = %+v", got)
	}
}
