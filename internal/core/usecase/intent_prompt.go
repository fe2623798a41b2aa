package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func buildIntentPrompt(question string, rule domain.DomainRule) string {
	topic := strings.TrimSpace(rule.Description)
	if topic == "" {
		topic = rule.Label
	}
	return fmt.Sprintf(`You decide whether a question relates to a topic.
Answer with exactly one word: yes or no.

Topic: %s

Question:
%s
`, topic, question)
}

// parseIntentAnswer accepts only a leading "yes" or "no" word.
func parseIntentAnswer(raw string) (bool, error) {
	words := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) > 0 {
		switch words[0] {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("malformed intent answer: %q", raw)
}
