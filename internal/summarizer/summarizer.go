package summarizer

import (
	"fmt"
	"strings"
)

// Strategy names accepted by New.
const (
	StrategyTruncate = "truncate"
	StrategyTextRank = "textrank"
)

// Summarizer reduces text to at most n of its own sentences, kept in
// document order.
type Summarizer interface {
	Summarize(text string, n int) string
}

// New resolves a strategy name to a Summarizer.
func New(strategy string) (Summarizer, error) {
	switch strategy {
	case StrategyTruncate:
		return Truncate{}, nil
	case StrategyTextRank, "":
		return NewTextRank(), nil
	default:
		return nil, fmt.Errorf("unknown summary strategy %q (valid: %s, %s)", strategy, StrategyTruncate, StrategyTextRank)
	}
}

// Truncate keeps the first n sentences.
type Truncate struct{}

func (Truncate) Summarize(text string, n int) string {
	if n <= 0 {
		return ""
	}
	sentences := SplitSentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return strings.Join(sentences, " ")
}
