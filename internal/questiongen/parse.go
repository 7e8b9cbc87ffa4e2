package questiongen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/Trivia-KakaoTalk-bot/internal/util"
)

var (
	errNoJSON        = errors.New("no json object in response")
	errMissingText   = errors.New("question text is empty")
	errOptionCount   = errors.New("expected exactly 4 options")
	errEmptyOption   = errors.New("option is empty")
	errDupOption     = errors.New("options are not distinct")
	errCorrectAbsent = errors.New("correct answer is not one of the options")
	errDuplicate     = errors.New("question was already asked")
)

// payload accepts both the Portuguese keys we ask for and the English ones models sometimes return.
type payload struct {
	Pergunta string   `json:"pergunta"`
	Opcoes   []string `json:"opcoes"`
	Correta  string   `json:"correta"`

	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

type candidate struct {
	text    string
	options []string
	correct string
}

// extractJSON strips markdown fences and keeps the span between the first '{' and the last '}'.
func extractJSON(raw string) (string, error) {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first < 0 || last <= first {
		return "", errNoJSON
	}
	return s[first : last+1], nil
}

func parseCandidate(raw string) (candidate, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return candidate{}, err
	}
	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return candidate{}, fmt.Errorf("decode question json: %w", err)
	}
	c := candidate{text: p.Pergunta, options: p.Opcoes, correct: p.Correta}
	if strings.TrimSpace(c.text) == "" {
		c.text = p.Question
	}
	if len(c.options) == 0 {
		c.options = p.Options
	}
	if strings.TrimSpace(c.correct) == "" {
		c.correct = p.Answer
	}
	return c, nil
}

// validate checks the candidate and normalizes it: trimmed strings and the correct
// answer spelled exactly like its option.
func validate(c candidate, asked []string) (candidate, error) {
	c.text = strings.TrimSpace(c.text)
	if c.text == "" {
		return c, errMissingText
	}
	if len(c.options) != 4 {
		return c, fmt.Errorf("%w: got %d", errOptionCount, len(c.options))
	}

	seen := make(map[string]struct{}, 4)
	opts := make([]string, 4)
	for i, o := range c.options {
		o = strings.TrimSpace(o)
		if o == "" {
			return c, errEmptyOption
		}
		key := util.Fold(o)
		if _, dup := seen[key]; dup {
			return c, errDupOption
		}
		seen[key] = struct{}{}
		opts[i] = o
	}
	c.options = opts

	correct := strings.TrimSpace(c.correct)
	matched := ""
	for _, o := range opts {
		if strings.EqualFold(o, correct) {
			matched = o
			break
		}
	}
	if matched == "" {
		return c, errCorrectAbsent
	}
	c.correct = matched

	folded := util.Fold(c.text)
	for _, q := range asked {
		if util.Fold(q) == folded {
			return c, errDuplicate
		}
	}
	return c, nil
}
