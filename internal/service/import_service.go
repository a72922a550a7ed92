package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/questionfile"
)

// QuestionReplacer stores a parsed question list for a quiz.
type QuestionReplacer interface {
	ReplaceQuestions(ctx context.Context, quizID uuid.UUID, questions []assessment.Question) error
}

// ImportService turns uploaded question files into quiz questions.
type ImportService struct {
	quizzes  QuestionReplacer
	maxBytes int64
	log      zerolog.Logger
}

// NewImportService creates a new ImportService. maxBytes <= 0 disables the size check.
func NewImportService(quizzes QuestionReplacer, maxBytes int64, log zerolog.Logger) *ImportService {
	return &ImportService{
		quizzes:  quizzes,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "import_service").Logger(),
	}
}

// Preview parses a file without storing anything.
func (s *ImportService) Preview(filename string, data []byte, questionType string) (*model.ImportSummary, error) {
	report, err := s.parse(filename, data, questionType)
	if err != nil {
		return nil, err
	}
	return &model.ImportSummary{
		Filename:  filepath.Base(filename),
		Imported:  len(report.Questions),
		Skipped:   report.Skipped,
		Questions: report.Questions,
	}, nil
}

// Import parses a file and replaces the quiz's questions with the result.
// Nothing is stored when parsing fails.
func (s *ImportService) Import(ctx context.Context, quizID uuid.UUID, filename string, data []byte, questionType string) (*model.ImportSummary, error) {
	report, err := s.parse(filename, data, questionType)
	if err != nil {
		return nil, err
	}
	if err := s.quizzes.ReplaceQuestions(ctx, quizID, report.Questions); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("quiz_id", quizID.String()).
		Str("filename", filepath.Base(filename)).
		Int("imported", len(report.Questions)).
		Int("skipped", report.Skipped).
		Msg("Questions imported")

	return &model.ImportSummary{
		QuizID:   quizID,
		Filename: filepath.Base(filename),
		Imported: len(report.Questions),
		Skipped:  report.Skipped,
	}, nil
}

func (s *ImportService) parse(filename string, data []byte, questionType string) (questionfile.Report, error) {
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return questionfile.Report{}, ErrFileTooLarge
	}
	qtype, ok := assessment.ParseQuestionType(questionType)
	if !ok {
		return questionfile.Report{}, fmt.Errorf("%w: question type %q", questionfile.ErrUnsupportedFormat, questionType)
	}
	return questionfile.ParseReport(filename, data, qtype)
}
