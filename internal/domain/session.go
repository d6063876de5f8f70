package domain

import (
	"time"
)

// CoachingSession is an immutable ledger entry for one coaching exchange.
type CoachingSession struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"userId"`
	Mode            string    `json:"mode"`
	Transcript      string    `json:"transcript"`
	HeuristicScore  int       `json:"heuristicScore"`
	Confidence      int       `json:"confidence"`
	FluentSentence  string    `json:"fluentSentence"`
	Tips            []string  `json:"tips"`
	Tone            string    `json:"tone"`
	CreatedAt       time.Time `json:"createdAt"`
	DurationSeconds int       `json:"duration"`
}

// Suggestion is the structured reply of the language-generation collaborator.
type Suggestion struct {
	FluentSentence string   `json:"fluentSentence"`
	Tips           []string `json:"tips"`
	Tone           string   `json:"tone"`
	Confidence     int      `json:"confidence"`
}
