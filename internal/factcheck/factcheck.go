// Package factcheck finds the verified fact closest to a piece of text.
package factcheck

import (
	"math"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopwords carry no topical signal and would make unrelated sentences look
// similar.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "will": {}, "with": {},
}

type vector map[string]float64

type entry struct {
	text string
	vec  vector
	norm float64
}

// Index holds term-frequency vectors of the verified facts. It is read-only
// after New and safe for concurrent use.
type Index struct {
	facts         []entry
	minSimilarity float64
}

// New indexes facts. Blank facts are ignored.
func New(facts []string, minSimilarity float64) *Index {
	idx := &Index{minSimilarity: minSimilarity}
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v := termFrequencies(f)
		if len(v) == 0 {
			continue
		}
		idx.facts = append(idx.facts, entry{text: f, vec: v, norm: v.norm()})
	}
	return idx
}

// Len reports how many facts are indexed.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.facts)
}

// Closest returns the most similar fact when its cosine similarity is at least
// the configured minimum. Ties keep the earlier fact.
func (idx *Index) Closest(text string) (string, bool) {
	fact, sim := idx.best(text)
	if fact == "" || sim < idx.minSimilarity {
		return "", false
	}
	return fact, true
}

func (idx *Index) best(text string) (string, float64) {
	if idx.Len() == 0 {
		return "", 0
	}
	q := termFrequencies(text)
	qn := q.norm()
	if qn == 0 {
		return "", 0
	}

	var (
		bestText string
		bestSim  float64
	)
	for _, e := range idx.facts {
		var dot float64
		for term, w := range q {
			dot += w * e.vec[term]
		}
		sim := dot / (qn * e.norm)
		if sim > bestSim {
			bestText, bestSim = e.text, sim
		}
	}
	return bestText, bestSim
}

func termFrequencies(s string) vector {
	v := vector{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if _, skip := stopwords[w]; skip {
			continue
		}
		v[w]++
	}
	return v
}

func (v vector) norm() float64 {
	var sq float64
	for _, w := range v {
		sq += w * w
	}
	return math.Sqrt(sq)
}
