// Package questionfile turns uploaded question files into validated
// assessment questions. Parsing is lenient: malformed rows or blocks are
// skipped, and only a file with no usable question at all is an error.
package questionfile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/assessment"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported question file format")
	ErrEmptyResult       = errors.New("no valid questions found in file")
)

// Supported file extensions.
const (
	ExtCSV  = ".csv"
	ExtText = ".txt"
	ExtXLSX = ".xlsx"
)

// Report is the outcome of a parse, including how many candidate rows or
// blocks were skipped.
type Report struct {
	Questions []assessment.Question `json:"questions"`
	Skipped   int                   `json:"skipped"`
}

// draft is a question before it receives an id and passes validation.
type draft struct {
	prompt      string
	options     []assessment.Option
	correct     assessment.AnswerSet
	explanation string
}

// Supported reports whether filename has an extension Parse understands.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtCSV, ExtText, ExtXLSX:
		return true
	}
	return false
}

// Parse reads questions of the declared type from data. The format is taken
// from the filename extension.
func Parse(filename string, data []byte, qtype assessment.QuestionType) ([]assessment.Question, error) {
	rep, err := ParseReport(filename, data, qtype)
	if err != nil {
		return nil, err
	}
	return rep.Questions, nil
}

// ParseReport is Parse with the skipped-entry count.
func ParseReport(filename string, data []byte, qtype assessment.QuestionType) (Report, error) {
	switch qtype {
	case assessment.QuestionTypeMultipleChoice, assessment.QuestionTypeTrueFalse, assessment.QuestionTypeShortAnswer:
	default:
		return Report{}, fmt.Errorf("%w: question type %q", ErrUnsupportedFormat, qtype)
	}

	var (
		drafts []draft
		seen   int
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ExtCSV:
		drafts, seen = fromRows(splitRecords(string(data)), qtype)
	case ExtText:
		drafts, seen = fromBlocks(string(data), qtype)
	case ExtXLSX:
		rows, err := readWorkbook(data)
		if err != nil {
			return Report{}, err
		}
		drafts, seen = fromRows(rows, qtype)
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	rep := Report{Questions: make([]assessment.Question, 0, len(drafts))}
	for _, d := range drafts {
		q := d.question(qtype, len(rep.Questions))
		if q.Validate() != nil {
			continue
		}
		rep.Questions = append(rep.Questions, q)
	}
	rep.Skipped = seen - len(rep.Questions)

	if len(rep.Questions) == 0 {
		return Report{}, fmt.Errorf("%w: %s", ErrEmptyResult, filepath.Base(filename))
	}
	return rep, nil
}

func (d draft) question(qtype assessment.QuestionType, order int) assessment.Question {
	return assessment.Question{
		ID:             uuid.NewString(),
		Type:           qtype,
		Prompt:         d.prompt,
		Options:        d.options,
		CorrectAnswers: d.correct,
		Explanation:    d.explanation,
		Order:          order,
	}
}

// trueFalseDraft builds the fixed two-option form.
func trueFalseDraft(prompt, answer, explanation string) draft {
	q := assessment.NewTrueFalseQuestion("", prompt, strings.Contains(strings.ToLower(answer), "true"), explanation)
	return draft{prompt: q.Prompt, options: q.Options, correct: q.CorrectAnswers, explanation: explanation}
}

// shortAnswerDraft stores the normalised accepted answer.
func shortAnswerDraft(prompt, answer, explanation string) draft {
	d := draft{prompt: prompt, explanation: explanation}
	if norm := assessment.NormalizeText(answer); norm != "" {
		d.correct = assessment.NewAnswerSet(norm)
	}
	return d
}

func isLabel(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}

// labelAt returns the option label for position i (A, B, C...).
func labelAt(i int) string {
	return string(rune('A' + i))
}
