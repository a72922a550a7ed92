package assessment

// QuestionOutcome is the grading of a single question.
type QuestionOutcome struct {
	Selected  AnswerSet `json:"selected"`
	Correct   AnswerSet `json:"correct"`
	IsCorrect bool      `json:"is_correct"`
}

// ScoredResult is the graded outcome of one attempt.
type ScoredResult struct {
	TotalQuestions int                        `json:"total_questions"`
	CorrectCount   int                        `json:"correct_count"`
	ScorePercent   int                        `json:"score_percent"`
	Passed         bool                       `json:"passed"`
	PassThreshold  int                        `json:"pass_threshold"`
	PerQuestion    map[string]QuestionOutcome `json:"per_question"`
}

// Score grades answers against questions using exact set equality.
// An unanswered question counts as the empty set.
func Score(questions []Question, answers map[string]AnswerSet, passThreshold int) ScoredResult {
	res := ScoredResult{
		TotalQuestions: len(questions),
		PassThreshold:  passThreshold,
		PerQuestion:    make(map[string]QuestionOutcome, len(questions)),
	}

	for _, q := range questions {
		selected := answers[q.ID].Clone()
		ok := Equal(selected, q.CorrectAnswers)
		if ok {
			res.CorrectCount++
		}
		res.PerQuestion[q.ID] = QuestionOutcome{
			Selected:  selected,
			Correct:   q.CorrectAnswers.Clone(),
			IsCorrect: ok,
		}
	}

	res.ScorePercent = Percent(res.CorrectCount, res.TotalQuestions)
	res.Passed = res.ScorePercent >= passThreshold
	return res
}

// Percent returns correct/total as a whole percentage rounded half up.
// Integer arithmetic keeps exact halves from drifting.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (2 * total)
}
