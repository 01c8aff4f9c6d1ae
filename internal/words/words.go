// Package words turns transcripts into word statistics.
package words

import (
	"regexp"
	"sort"
	"strings"
)

// TopN is how many entries a top-words list holds.
const TopN = 10

var wordPattern = regexp.MustCompile(`[a-z']+`)

// Tokenize lowercases text and returns its maximal runs of ASCII letters and
// apostrophes in order. Digits, punctuation and non-ASCII letters separate
// words.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// WordCount is a word with its number of occurrences.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Frequency counts words and remembers the order each word was first seen,
// which breaks ties in Top.
type Frequency struct {
	counts map[string]int
	order  []string
	total  int
}

func NewFrequency() *Frequency {
	return &Frequency{counts: make(map[string]int)}
}

// Add records n occurrences of word. Non-positive n is ignored.
func (f *Frequency) Add(word string, n int) {
	if n <= 0 {
		return
	}
	if _, ok := f.counts[word]; !ok {
		f.order = append(f.order, word)
	}
	f.counts[word] += n
	f.total += n
}

// Merge adds every count in other, preserving other's first-seen order for
// words new to f.
func (f *Frequency) Merge(other *Frequency) {
	if other == nil {
		return
	}
	for _, w := range other.order {
		f.Add(w, other.counts[w])
	}
}

func (f *Frequency) Count(word string) int { return f.counts[word] }

// Total is the number of word occurrences, not distinct words.
func (f *Frequency) Total() int { return f.total }

func (f *Frequency) Len() int { return len(f.order) }

// Entries returns every word in first-seen order.
func (f *Frequency) Entries() []WordCount {
	out := make([]WordCount, 0, len(f.order))
	for _, w := range f.order {
		out = append(out, WordCount{Word: w, Count: f.counts[w]})
	}
	return out
}

// Top returns up to n entries by descending count, ties in first-seen order.
func (f *Frequency) Top(n int) []WordCount {
	out := f.Entries()
	sortByCount(out)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (f *Frequency) Clone() *Frequency {
	c := NewFrequency()
	c.Merge(f)
	return c
}

func sortByCount(wc []WordCount) {
	sort.SliceStable(wc, func(i, j int) bool { return wc[i].Count > wc[j].Count })
}

// Count tokenizes text into a new Frequency.
func Count(text string) *Frequency {
	f := NewFrequency()
	for _, w := range Tokenize(text) {
		f.Add(w, 1)
	}
	return f
}

// FlaggedSet is a case-insensitive set of words to report on.
type FlaggedSet map[string]struct{}

func NewFlaggedSet(words []string) FlaggedSet {
	s := make(FlaggedSet, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			s[w] = struct{}{}
		}
	}
	return s
}

func (s FlaggedSet) Contains(word string) bool {
	_, ok := s[strings.ToLower(word)]
	return ok
}

// Stats is the per-user analysis of one transcript or of accumulated counts.
type Stats struct {
	TotalWords int
	TopWords   []WordCount
	// Flagged holds every flagged word with its count, by descending count.
	Flagged []WordCount
	Counts  *Frequency
}

// FlaggedTotal sums the counts in Flagged.
func (s Stats) FlaggedTotal() int {
	n := 0
	for _, wc := range s.Flagged {
		n += wc.Count
	}
	return n
}

// Analyze counts the words in transcript and pulls out flagged ones.
func Analyze(transcript string, flagged FlaggedSet) Stats {
	return Derive(Count(transcript), flagged)
}

// Derive computes Stats from existing counts.
func Derive(counts *Frequency, flagged FlaggedSet) Stats {
	if counts == nil {
		counts = NewFrequency()
	}
	st := Stats{
		TotalWords: counts.Total(),
		TopWords:   counts.Top(TopN),
		Counts:     counts,
	}
	for _, wc := range counts.Entries() {
		if flagged.Contains(wc.Word) {
			st.Flagged = append(st.Flagged, wc)
		}
	}
	sortByCount(st.Flagged)
	return st
}

// UserStats attaches a user identity to Stats.
type UserStats struct {
	UserID string
	Name   string
	Stats
}
