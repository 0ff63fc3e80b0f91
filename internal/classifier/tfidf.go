package classifier

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	DefaultMaxFeatures = 30000
)

// ErrEmptyVocabulary is returned when no document yields a single token.
var ErrEmptyVocabulary = errors.New("empty vocabulary: training texts contain no usable tokens")

// tokens are runs of at least two word characters
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// SparseVector holds the non-zero entries of a feature vector, indices ascending.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Vectorizer turns text into L2-normalized TF-IDF vectors over word n-grams.
type Vectorizer struct {
	NGramRange  [2]int         `json:"ngram_range"`
	MaxFeatures int            `json:"max_features"`
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
}

// NewVectorizer returns an unfitted vectorizer over unigrams and bigrams.
func NewVectorizer(maxFeatures int) *Vectorizer {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &Vectorizer{
		NGramRange:  [2]int{1, 2},
		MaxFeatures: maxFeatures,
	}
}

// NumFeatures is the vocabulary size.
func (v *Vectorizer) NumFeatures() int {
	return len(v.IDF)
}

func (v *Vectorizer) analyze(doc string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(doc), -1)
	var terms []string
	for n := v.NGramRange[0]; n <= v.NGramRange[1]; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}

// Fit learns the vocabulary and inverse document frequencies from docs.
// When the vocabulary exceeds MaxFeatures, the most frequent terms across the
// corpus are kept.
func (v *Vectorizer) Fit(docs []string) error {
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range v.analyze(doc) {
			tf[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				df[term]++
			}
		}
	}
	if len(df) == 0 {
		return ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Vocabulary = make(map[string]int, len(terms))
	v.IDF = make([]float64, len(terms))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

// Transform maps doc onto the fitted vocabulary. Unknown terms are dropped;
// a doc with no known terms yields an empty vector.
func (v *Vectorizer) Transform(doc string) SparseVector {
	counts := make(map[int]float64)
	for _, term := range v.analyze(doc) {
		if idx, ok := v.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	vec := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)

	var norm float64
	for _, idx := range vec.Indices {
		w := counts[idx] * v.IDF[idx]
		vec.Values = append(vec.Values, w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec.Values {
		vec.Values[i] /= norm
	}
	return vec
}

// TransformAll vectorizes a batch of docs.
func (v *Vectorizer) TransformAll(docs []string) []SparseVector {
	out := make([]SparseVector, len(docs))
	for i, doc := range docs {
		out[i] = v.Transform(doc)
	}
	return out
}

func (v *Vectorizer) validate() error {
	if v.NGramRange[0] < 1 || v.NGramRange[1] < v.NGramRange[0] {
		return errors.New("vectorizer: invalid n-gram range")
	}
	if len(v.Vocabulary) != len(v.IDF) {
		return errors.New("vectorizer: vocabulary and idf sizes differ")
	}
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return errors.New("vectorizer: vocabulary index out of range for " + term)
		}
	}
	return nil
}
