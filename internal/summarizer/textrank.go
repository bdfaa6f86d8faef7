package summarizer

import (
	"math"
	"sort"
	"strings"
)

const (
	defaultDamping        = 0.85
	defaultEpsilon        = 1e-4
	maxPowerIterations    = 100
	zeroDivisionGuard     = 1e-7
	scoreComparePrecision = 1e9
)

// TextRank selects the n most central sentences of a similarity graph built
// over the whole document.
type TextRank struct {
	Damping float64
	Epsilon float64
}

// NewTextRank returns a TextRank with the usual damping and convergence
// threshold.
func NewTextRank() TextRank {
	return TextRank{Damping: defaultDamping, Epsilon: defaultEpsilon}
}

func (t TextRank) Summarize(text string, n int) string {
	if n <= 0 {
		return ""
	}
	sentences := SplitSentences(text)
	if len(sentences) <= n {
		return strings.Join(sentences, " ")
	}

	scores := t.rank(sentences)
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	// Scores are rounded so float noise cannot reorder sentences that tie.
	sort.SliceStable(order, func(a, b int) bool {
		return roundScore(scores[order[a]]) > roundScore(scores[order[b]])
	})

	picked := order[:n]
	sort.Ints(picked)
	out := make([]string, 0, n)
	for _, idx := range picked {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " ")
}

// rank returns the stationary PageRank score of each sentence.
func (t TextRank) rank(sentences []string) []float64 {
	damping := t.Damping
	if damping <= 0 || damping >= 1 {
		damping = defaultDamping
	}
	epsilon := t.Epsilon
	if epsilon <= 0 {
		epsilon = defaultEpsilon
	}

	n := len(sentences)
	tokens := make([][]string, n)
	for i, s := range sentences {
		tokens[i] = words(s)
	}

	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, n)
	}
	// No self edges: a sentence similar only to itself must not keep its own mass.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := edgeWeight(tokens[i], tokens[j])
			weights[i][j] = w
			weights[j][i] = w
		}
	}
	base := (1 - damping) / float64(n)
	for i := range weights {
		var sum float64
		for _, w := range weights[i] {
			sum += w
		}
		for j := range weights[i] {
			weights[i][j] = base + damping*weights[i][j]/(sum+zeroDivisionGuard)
		}
	}

	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	for iter := 0; iter < maxPowerIterations; iter++ {
		next := make([]float64, n)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				next[j] += weights[i][j] * p[i]
			}
		}
		normalize(next)
		var delta float64
		for i := range next {
			d := next[i] - p[i]
			delta += d * d
		}
		p = next
		if math.Sqrt(delta) < epsilon {
			break
		}
	}
	return p
}

// edgeWeight counts shared word occurrences normalized by sentence lengths.
func edgeWeight(a, b []string) float64 {
	counts := make(map[string]int, len(b))
	for _, w := range b {
		counts[w]++
	}
	var shared int
	for _, w := range a {
		shared += counts[w]
	}
	if shared == 0 {
		return 0
	}
	norm := math.Log(float64(len(a))) + math.Log(float64(len(b)))
	if math.Abs(norm) < 1e-12 {
		return float64(shared)
	}
	return float64(shared) / norm
}

func normalize(p []float64) {
	var sum float64
	for _, v := range p {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range p {
		p[i] /= sum
	}
}

func roundScore(s float64) float64 {
	return math.Round(s*scoreComparePrecision) / scoreComparePrecision
}
