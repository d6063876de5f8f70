// Package heuristic scores transcripts for fluency without any model calls.
package heuristic

import "strings"

const (
	maxScore      = 100
	minScore      = 30
	repeatPenalty = 10
	fillerPenalty = 5
)

var fillerWords = map[string]struct{}{
	"um":   {},
	"uh":   {},
	"erm":  {},
	"hmm":  {},
	"like": {},
}

// Result holds the fluency score and the counts that produced it.
type Result struct {
	Score   int `json:"score"`
	Repeats int `json:"repeats"`
	Fillers int `json:"fillers"`
}

// Tokenize lower-cases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Analyze counts adjacent repeats and filler words and derives a score in [30, 100].
func Analyze(text string) Result {
	tokens := Tokenize(text)

	var res Result
	for i, tok := range tokens {
		if i > 0 && tokens[i-1] == tok {
			res.Repeats++
		}
		if _, ok := fillerWords[tok]; ok {
			res.Fillers++
		}
	}

	res.Score = maxScore - repeatPenalty*res.Repeats - fillerPenalty*res.Fillers
	if res.Score < minScore {
		res.Score = minScore
	}
	return res
}
