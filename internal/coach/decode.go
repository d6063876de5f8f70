package coach

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ashureev/fluentcoach/internal/domain"
)

var errEmptyReply = errors.New("empty reply")

// DecodeSuggestion parses a collaborator reply. Markdown code fences are
// stripped and malformed JSON is repaired once before giving up.
func DecodeSuggestion(raw string) (domain.Suggestion, error) {
	var s domain.Suggestion
	text := stripFences(raw)
	if text == "" {
		return s, errEmptyReply
	}
	if err := unmarshalJSON([]byte(text), &s); err != nil {
		return domain.Suggestion{}, err
	}
	return s, nil
}

func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
