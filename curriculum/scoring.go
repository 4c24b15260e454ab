package curriculum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"reclaim/common"
	"reclaim/models"
)

type Question struct {
	ID   string  `json:"id"`
	Text string  `json:"text"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type Rubric struct {
	Method        string   `json:"method"` // sum | average
	ReverseScored []string `json:"reverseScored,omitempty"`
	Bands         []Band   `json:"bands"`
}

type Band struct {
	Min            int    `json:"min"`
	Max            int    `json:"max"`
	Label          string `json:"label"`
	Interpretation string `json:"interpretation"`
}

type Score struct {
	Score          *int   `json:"score"`
	Label          string `json:"label,omitempty"`
	Interpretation string `json:"interpretation"`
}

// ScoreAssessment evaluates answers against the rubric stored on the
// assessment. Assessments without a rubric accept any JSON object and are
// stored unscored.
func ScoreAssessment(assessment *models.Assessment, answers json.RawMessage) (Score, error) {
	if len(bytes.TrimSpace(assessment.ScoringRubric)) == 0 || bytes.Equal(bytes.TrimSpace(assessment.ScoringRubric), []byte("null")) {
		var generic map[string]json.RawMessage
		if err := json.Unmarshal(answers, &generic); err != nil {
			return Score{}, invalid("answers must be a JSON object")
		}
		return Score{}, nil
	}

	var rubric Rubric
	if err := json.Unmarshal(assessment.ScoringRubric, &rubric); err != nil {
		return Score{}, common.Internal("Assessment rubric is malformed", err)
	}
	var questions []Question
	if err := json.Unmarshal(assessment.Questions, &questions); err != nil {
		return Score{}, common.Internal("Assessment questions are malformed", err)
	}
	if len(questions) == 0 {
		return Score{}, common.Internal("Assessment has no questions", nil)
	}

	var values map[string]float64
	if err := json.Unmarshal(answers, &values); err != nil {
		return Score{}, invalid("answers must map question ids to numbers")
	}

	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	for id := range values {
		if !known[id] {
			return Score{}, invalid(fmt.Sprintf("unknown question %q", id))
		}
	}

	reversed := make(map[string]bool, len(rubric.ReverseScored))
	for _, id := range rubric.ReverseScored {
		reversed[id] = true
	}

	total := 0.0
	for _, q := range questions {
		v, ok := values[q.ID]
		if !ok {
			return Score{}, invalid(fmt.Sprintf("question %s is unanswered", q.ID))
		}
		if v < q.Min || v > q.Max {
			return Score{}, invalid(fmt.Sprintf("answer to %s is out of range", q.ID))
		}
		if reversed[q.ID] {
			v = q.Min + q.Max - v
		}
		total += v
	}

	var score int
	switch rubric.Method {
	case "average":
		score = int(math.Round(total / float64(len(questions))))
	case "", "sum":
		score = int(math.Round(total))
	default:
		return Score{}, common.Internal("Assessment rubric is malformed", fmt.Errorf("unknown method %q", rubric.Method))
	}

	result := Score{Score: &score}
	for _, band := range rubric.Bands {
		if score >= band.Min && score <= band.Max {
			result.Label = band.Label
			result.Interpretation = band.Label + ": " + band.Interpretation
			break
		}
	}
	return result, nil
}
