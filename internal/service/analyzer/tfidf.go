package analyzer

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
)

type TFIDFConfig struct {
	MaxFeatures int
	NGramMin    int
	NGramMax    int
}

func DefaultTFIDFConfig() TFIDFConfig {
	return TFIDFConfig{MaxFeatures: 5000, NGramMin: 1, NGramMax: 3}
}

// tfidfStrategy weights word n-grams by raw count times smoothed IDF over
// the batch [target, peers...], L2-normalises each row and reports the
// cosine between the target row and every peer row. The model is rebuilt
// on every call.
type tfidfStrategy struct {
	cfg          TFIDFConfig
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewTFIDFStrategy(cfg TFIDFConfig) Strategy {
	def := DefaultTFIDFConfig()
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = def.MaxFeatures
	}
	if cfg.NGramMin <= 0 {
		cfg.NGramMin = def.NGramMin
	}
	if cfg.NGramMax < cfg.NGramMin {
		cfg.NGramMax = cfg.NGramMin
	}

	return &tfidfStrategy{
		cfg:          cfg,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}_]{2,}`),
		stopwords:    englishStopwords(),
	}
}

func (s *tfidfStrategy) Name() string { return models.StrategyTFIDF }

func (s *tfidfStrategy) Score(target string, peers []string) Outcome {
	docs := make([]map[string]int, 0, len(peers)+1)
	docs = append(docs, s.termCounts(target))
	for _, p := range peers {
		docs = append(docs, s.termCounts(p))
	}

	vocab, idf, err := s.fit(docs)
	if err != nil {
		return Failed(s.Name(), err)
	}

	targetVec := vectorize(docs[0], vocab, idf)
	scores := make([]float64, len(peers))
	for i := range peers {
		peerVec := vectorize(docs[i+1], vocab, idf)

		var dot float64
		for idx, w := range targetVec {
			dot += w * peerVec[idx]
		}
		score := dot * 100
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return Failed(s.Name(), fmt.Errorf("non-finite score for peer %d", i))
		}
		scores[i] = score
	}

	return Scored(s.Name(), scores)
}

// fit selects the vocabulary and computes idf = ln((1+n)/(1+df)) + 1.
// Terms are ranked by corpus frequency, ties broken lexicographically.
func (s *tfidfStrategy) fit(docs []map[string]int) (map[string]int, []float64, error) {
	corpusFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, counts := range docs {
		for term, c := range counts {
			corpusFreq[term] += c
			docFreq[term]++
		}
	}
	if len(corpusFreq) == 0 {
		return nil, nil, errors.New("empty vocabulary; documents contain only stop words")
	}

	terms := make([]string, 0, len(corpusFreq))
	for term := range corpusFreq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		fi, fj := corpusFreq[terms[i]], corpusFreq[terms[j]]
		if fi != fj {
			return fi > fj
		}
		return terms[i] < terms[j]
	})
	if len(terms) > s.cfg.MaxFeatures {
		terms = terms[:s.cfg.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return vocab, idf, nil
}

func vectorize(counts map[string]int, vocab map[string]int, idf []float64) map[int]float64 {
	vec := make(map[int]float64, len(counts))
	var norm float64
	for term, c := range counts {
		idx, ok := vocab[term]
		if !ok {
			continue
		}
		w := float64(c) * idf[idx]
		vec[idx] = w
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for idx := range vec {
		vec[idx] /= norm
	}
	return vec
}

func (s *tfidfStrategy) termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, term := range s.analyze(text) {
		counts[term]++
	}
	return counts
}

// analyze lower-cases, extracts tokens of two or more word characters, drops
// stop words and then builds n-grams over what remains.
func (s *tfidfStrategy) analyze(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := s.stopwords[tok]; !stop {
			tokens = append(tokens, tok)
		}
	}
	return wordNGrams(tokens, s.cfg.NGramMin, s.cfg.NGramMax)
}

func wordNGrams(tokens []string, minN, maxN int) []string {
	if maxN == 1 {
		return tokens
	}

	var out []string
	if minN == 1 {
		out = append(out, tokens...)
		minN = 2
	}
	for n := minN; n <= maxN && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
