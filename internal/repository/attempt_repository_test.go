package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/model"
)

func TestBuildAttemptColumns(t *testing.T) {
	respondent := "user-7"
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	batch := []*model.Attempt{
		{
			ID:           uuid.New(),
			SessionID:    "s1",
			QuizID:       uuid.New(),
			RespondentID: &respondent,
			AttemptNo:    2,
			ScorePercent: 67,
			Passed:       false,
			Trigger:      string(assessment.TriggerExpired),
			Answers:      map[string]assessment.AnswerSet{"q1": assessment.NewAnswerSet("C", "A")},
			SubmittedAt:  now,
		},
		{
			ID:        uuid.New(),
			SessionID: "s2",
			QuizID:    uuid.New(),
			Trigger:   string(assessment.TriggerManual),
		},
	}

	c, err := buildAttemptColumns(batch)
	if err != nil {
		t.Fatalf("buildAttemptColumns: %v", err)
	}
	if len(c.ids) != 2 || c.ids[1] != batch[1].ID {
		t.Fatalf("ids = %v", c.ids)
	}
	if c.respondentIDs[0] == nil || *c.respondentIDs[0] != respondent || c.respondentIDs[1] != nil {
		t.Fatal("respondent ids not carried as nullable")
	}
	if c.attemptNos[0] != 2 || c.scores[0] != 67 || c.triggers[0] != "expired" {
		t.Fatalf("scalar columns = %d %d %s", c.attemptNos[0], c.scores[0], c.triggers[0])
	}

	var answers map[string][]string
	if err := json.Unmarshal([]byte(c.answers[0]), &answers); err != nil {
		t.Fatalf("answers column is not JSON: %v", err)
	}
	if got := answers["q1"]; len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("answers = %v, want sorted labels", got)
	}
	if c.answers[1] != "null" {
		t.Fatalf("nil answers encoded as %q", c.answers[1])
	}
}
