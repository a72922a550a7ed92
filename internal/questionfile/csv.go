package questionfile

import (
	"strings"

	"github.com/stemsi/exstem-assessment/internal/assessment"
)

// splitRecords splits CSV text into trimmed fields per non-empty line.
func splitRecords(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitFields(line, ','))
	}
	return rows
}

// splitFields splits one line on delim. A double quote toggles quoting, so
// quoted fields may contain the delimiter; "" inside quotes is a literal
// quote.
func splitFields(line string, delim rune) []string {
	var (
		fields []string
		b      strings.Builder
		quoted bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && quoted && i+1 < len(runes) && runes[i+1] == '"':
			b.WriteRune('"')
			i++
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			fields = append(fields, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(fields, strings.TrimSpace(b.String()))
}

// headerCaptions are lower-cased first cells of a header row.
var headerCaptions = map[string]bool{
	"question":   true,
	"questions":  true,
	"prompt":     true,
	"soal":       true,
	"pertanyaan": true,
	"câu hỏi":    true,
	"cau hoi":    true,
	"câu":        true,
}

// booleanWords are the answer cells that mark a true/false data row.
var booleanWords = []string{"true", "false", "đúng", "sai", "benar", "salah"}

// isHeader reports whether the first row is a caption row. Besides known
// captions, a true/false first row whose answer cell is not a boolean is
// taken as a header.
func isHeader(row []string, qtype assessment.QuestionType) bool {
	if len(row) == 0 {
		return false
	}
	if headerCaptions[strings.ToLower(row[0])] {
		return true
	}
	if qtype != assessment.QuestionTypeTrueFalse || len(row) < 2 {
		return false
	}
	answer := strings.ToLower(row[1])
	for _, w := range booleanWords {
		if strings.Contains(answer, w) {
			return false
		}
	}
	return true
}

// fromRows converts tabular rows (CSV or a worksheet) into drafts. It also
// returns how many data rows were considered.
func fromRows(rows [][]string, qtype assessment.QuestionType) ([]draft, int) {
	if len(rows) > 0 && isHeader(rows[0], qtype) {
		rows = rows[1:]
	}

	var drafts []draft
	seen := 0
	for _, row := range rows {
		row = trimTrailingEmpty(row)
		if len(row) == 0 {
			continue
		}
		seen++

		var (
			d  draft
			ok bool
		)
		switch qtype {
		case assessment.QuestionTypeMultipleChoice:
			d, ok = choiceRow(row)
		case assessment.QuestionTypeTrueFalse:
			if len(row) >= 2 {
				d, ok = trueFalseDraft(row[0], row[1], field(row, 2)), true
			}
		case assessment.QuestionTypeShortAnswer:
			if len(row) >= 2 {
				d, ok = shortAnswerDraft(row[0], row[1], field(row, 2)), true
			}
		}
		if ok {
			drafts = append(drafts, d)
		}
	}
	return drafts, seen
}

// choiceRow reads prompt, options..., correct label, explanation?. The
// correct label is the last single-letter field at index 2 or later, so an
// option text like "A" earlier in the row is never mistaken for it. Labels
// follow column position; an empty cell keeps its letter but yields no
// option.
func choiceRow(row []string) (draft, bool) {
	answerIdx := -1
	for i := len(row) - 1; i >= 2; i-- {
		if isLabel(row[i]) {
			answerIdx = i
			break
		}
	}
	if answerIdx < 0 {
		return draft{}, false
	}

	var options []assessment.Option
	for i, t := range row[1:answerIdx] {
		if t == "" {
			continue
		}
		options = append(options, assessment.Option{Label: labelAt(i), Text: t})
	}
	if len(options) < 2 {
		return draft{}, false
	}

	return draft{
		prompt:      row[0],
		options:     options,
		correct:     assessment.NewAnswerSet(row[answerIdx]),
		explanation: field(row, answerIdx+1),
	}, true
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func trimTrailingEmpty(row []string) []string {
	for len(row) > 0 && row[len(row)-1] == "" {
		row = row[:len(row)-1]
	}
	return row
}
