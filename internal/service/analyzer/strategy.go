package analyzer

import "errors"

// ErrEngineFailure marks a strategy that could not score the batch at all.
var ErrEngineFailure = errors.New("similarity engine failure")

// Strategy scores a target against an ordered list of peers. Scores are
// percentages in [0,100] aligned with peers by index.
type Strategy interface {
	Name() string
	Score(target string, peers []string) Outcome
}

// Outcome is either a full score list or a failure; never both.
type Outcome struct {
	Strategy string
	Scores   []float64
	Err      error
}

func Scored(strategy string, scores []float64) Outcome {
	return Outcome{Strategy: strategy, Scores: scores}
}

func Failed(strategy string, err error) Outcome {
	return Outcome{Strategy: strategy, Err: errors.Join(ErrEngineFailure, err)}
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}
