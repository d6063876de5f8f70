// Package llm holds the prompt shared by the language-generation providers.
package llm

import (
	"fmt"

	"github.com/ashureev/fluentcoach/internal/coach"
)

// SystemPrompt instructs the model to reply with a single JSON object that
// decodes into domain.Suggestion.
const SystemPrompt = `You are a supportive speech fluency coach.
You receive a spoken transcript that may contain filler words, repeated words or broken phrasing.
Reply with ONLY a JSON object, no prose and no markdown, with exactly these fields:
  "fluentSentence": the transcript rewritten as one fluent sentence in the requested language,
  "tips": an array of 1 to 3 short, practical tips,
  "tone": one word describing the speaker's tone,
  "confidence": an integer from 1 to 100 estimating how fluent the original speech was.`

// UserPrompt renders the per-request message.
func UserPrompt(req coach.SuggestRequest) string {
	return fmt.Sprintf(
		"Mode: %s\nLanguage: %s\nHeuristic fluency score: %d/100\nTranscript: %q",
		req.Mode, req.Language, req.HeuristicScore, req.Transcript,
	)
}
