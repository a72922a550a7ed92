package questionfile

import (
	"regexp"
	"strings"

	"github.com/stemsi/exstem-assessment/internal/assessment"
)

var (
	blockSeparator = regexp.MustCompile(`\n[ \t]*\n`)
	ordinalPrefix  = regexp.MustCompile(`^\d+[.)]\s*`)
	optionLine     = regexp.MustCompile(`^([A-Z])[.)]\s*(.+)$`)
)

// fromBlocks converts blank-line separated text blocks into drafts.
func fromBlocks(text string, qtype assessment.QuestionType) ([]draft, int) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var drafts []draft
	seen := 0
	for _, block := range blockSeparator.Split(text, -1) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		seen++
		if d, ok := parseBlock(block, qtype); ok {
			drafts = append(drafts, d)
		}
	}
	return drafts, seen
}

func parseBlock(block string, qtype assessment.QuestionType) (draft, bool) {
	var (
		prompt      string
		options     []assessment.Option
		answer      string
		explanation string
	)
	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if prompt == "" {
			prompt = strings.TrimSpace(ordinalPrefix.ReplaceAllString(line, ""))
			continue
		}

		if v, ok := cutPrefixFold(line, "answer:", "correct:"); ok {
			answer = v
			continue
		}
		if v, ok := cutPrefixFold(line, "explanation:"); ok {
			explanation = v
			continue
		}
		if m := optionLine.FindStringSubmatch(line); m != nil {
			options = append(options, assessment.Option{Label: m[1], Text: strings.TrimSpace(m[2])})
		}
	}

	if prompt == "" || answer == "" {
		return draft{}, false
	}

	switch qtype {
	case assessment.QuestionTypeMultipleChoice:
		if len(options) < 2 {
			return draft{}, false
		}
		label := strings.ToUpper(answer[:1])
		return draft{
			prompt:      prompt,
			options:     options,
			correct:     assessment.NewAnswerSet(label),
			explanation: explanation,
		}, true
	case assessment.QuestionTypeTrueFalse:
		return trueFalseDraft(prompt, answer, explanation), true
	case assessment.QuestionTypeShortAnswer:
		return shortAnswerDraft(prompt, answer, explanation), true
	}
	return draft{}, false
}

// cutPrefixFold strips the first matching case-insensitive prefix and
// returns the trimmed remainder.
func cutPrefixFold(line string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if len(line) >= len(p) && strings.EqualFold(line[:len(p)], p) {
			return strings.TrimSpace(line[len(p):]), true
		}
	}
	return "", false
}
