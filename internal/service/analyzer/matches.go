package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
)

// SignificanceFloor is the score a match must exceed to be reported.
const SignificanceFloor = 5.0

// Peer identifies a compared document in the prepared corpus.
type Peer struct {
	ID          int64
	Filename    string
	DisplayName string
}

// BuildMatches rounds each score to two decimals, drops scores at or below
// floor and orders the rest by score descending, then peer id ascending.
func BuildMatches(peers []Peer, scores []float64, floor float64) ([]models.SimilarityMatch, error) {
	if len(peers) != len(scores) {
		return nil, fmt.Errorf("score count %d does not match peer count %d", len(scores), len(peers))
	}

	matches := make([]models.SimilarityMatch, 0, len(peers))
	for i, peer := range peers {
		score := RoundPercent(scores[i])
		if score <= floor {
			continue
		}
		matches = append(matches, models.SimilarityMatch{
			PeerID:            peer.ID,
			PeerFilename:      peer.Filename,
			PeerDisplayName:   peer.DisplayName,
			SimilarityPercent: score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SimilarityPercent != matches[j].SimilarityPercent {
			return matches[i].SimilarityPercent > matches[j].SimilarityPercent
		}
		return matches[i].PeerID < matches[j].PeerID
	})

	return matches, nil
}

// PlagiarismPercent is the highest match score, or 0 without matches.
func PlagiarismPercent(matches []models.SimilarityMatch) float64 {
	max := 0.0
	for _, m := range matches {
		if m.SimilarityPercent > max {
			max = m.SimilarityPercent
		}
	}
	return max
}

// RoundPercent clamps to [0,100] and rounds to two decimals.
func RoundPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		v = 100
	}
	return math.Round(v*100) / 100
}
