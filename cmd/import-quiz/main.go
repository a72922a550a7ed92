// Command import-quiz creates a quiz from a YAML manifest and a question file.
//
//	import-quiz [-dry-run] [-publish] quiz.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// manifest describes one quiz. File is resolved relative to the manifest.
type manifest struct {
	Title              string `yaml:"title"`
	Description        string `yaml:"description"`
	Kind               string `yaml:"kind"`
	DurationMinutes    int    `yaml:"duration_minutes"`
	PassThreshold      *int   `yaml:"pass_threshold"`
	MaxAttempts        int    `yaml:"max_attempts"`
	GuestQuestionLimit *int   `yaml:"guest_question_limit"`
	QuestionType       string `yaml:"question_type"`
	File               string `yaml:"file"`
	Publish            bool   `yaml:"publish"`
}

func (m *manifest) request() *model.CreateQuizRequest {
	kind := m.Kind
	if kind == "" {
		kind = string(model.QuizKindExam)
	}
	return &model.CreateQuizRequest{
		Title:              m.Title,
		Description:        m.Description,
		Kind:               kind,
		DurationMinutes:    m.DurationMinutes,
		PassThreshold:      m.PassThreshold,
		MaxAttempts:        m.MaxAttempts,
		GuestQuestionLimit: m.GuestQuestionLimit,
	}
}

// loadManifest decodes path strictly and validates the quiz settings.
func loadManifest(path string) (*manifest, *model.CreateQuizRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var m manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m.File == "" || m.QuestionType == "" {
		return nil, nil, fmt.Errorf("%s: file and question_type are required", path)
	}
	if !filepath.IsAbs(m.File) {
		m.File = filepath.Join(filepath.Dir(path), m.File)
	}

	req := m.request()
	if err := binding.Validator.ValidateStruct(req); err != nil {
		return nil, nil, fmt.Errorf("%s: invalid quiz settings: %v", path, validator.TranslateErrors(err))
	}
	return &m, req, nil
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Parse and print the questions without touching the database")
	publish := flag.Bool("publish", false, "Publish the quiz after import (overrides the manifest)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: import-quiz [-dry-run] [-publish] <manifest.yaml>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	m, req, err := loadManifest(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid manifest")
	}
	data, err := os.ReadFile(m.File)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read question file")
	}

	if *dryRun {
		summary, err := service.NewImportService(nil, cfg.MaxUploadBytes, log).Preview(m.File, data, m.QuestionType)
		if err != nil {
			log.Fatal().Err(err).Msg("Question file rejected")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatal().Err(err).Msg("Failed to print summary")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log, m, req, data, *publish || m.Publish); err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *manifest, req *model.CreateQuizRequest, data []byte, publish bool) error {
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	quizService := service.NewQuizService(
		repository.NewQuizRepository(pool),
		repository.NewQuestionRepository(pool),
		service.NewRedisQuizCache(rdb, cfg.QuestionCacheTTL),
		cfg,
		log,
	)
	importService := service.NewImportService(quizService, cfg.MaxUploadBytes, log)

	quiz, err := quizService.Create(ctx, req)
	if err != nil {
		return err
	}
	summary, err := importService.Import(ctx, quiz.ID, m.File, data, m.QuestionType)
	if err != nil {
		return fmt.Errorf("quiz %s created but import failed: %w", quiz.ID, err)
	}
	if publish {
		if _, err := quizService.Publish(ctx, quiz.ID); err != nil {
			return fmt.Errorf("publish quiz %s: %w", quiz.ID, err)
		}
	}

	log.Info().
		Str("quiz_id", quiz.ID.String()).
		Int("imported", summary.Imported).
		Int("skipped", summary.Skipped).
		Bool("published", publish).
		Msg("Quiz imported")
	return nil
}
