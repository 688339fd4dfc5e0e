package analyzer

import (
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/textproc"
)

// jaccardStrategy compares word sets. It cannot fail and always scores
// every peer.
type jaccardStrategy struct {
	wordSet func(string) map[string]struct{}
}

func NewJaccardStrategy(wordSet func(string) map[string]struct{}) Strategy {
	if wordSet == nil {
		wordSet = textproc.WordSet
	}
	return &jaccardStrategy{wordSet: wordSet}
}

func (s *jaccardStrategy) Name() string { return models.StrategyJaccard }

func (s *jaccardStrategy) Score(target string, peers []string) Outcome {
	targetSet := s.wordSet(target)

	scores := make([]float64, len(peers))
	for i, peer := range peers {
		scores[i] = CalculateSimilarity(targetSet, s.wordSet(peer)) * 100
	}
	return Scored(s.Name(), scores)
}

// CalculateSimilarity returns |a ∩ b| / |a ∪ b|, or 0 for two empty sets.
func CalculateSimilarity(a, b map[string]struct{}) float64 {
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
