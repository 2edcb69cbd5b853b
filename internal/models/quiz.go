package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QuizDifficulty levels accepted by the generator.
type QuizDifficulty string

const (
	DifficultyEasy   QuizDifficulty = "easy"
	DifficultyMedium QuizDifficulty = "medium"
	DifficultyHard   QuizDifficulty = "hard"
)

// Valid reports whether the difficulty is a known level.
func (d QuizDifficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuizQuestion is one generated multiple-choice question.
type QuizQuestion struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// QuestionList persists generated questions as JSONB.
type QuestionList []QuizQuestion

// Value marshals the list to JSON for persistence.
func (q QuestionList) Value() (driver.Value, error) {
	if q == nil {
		q = QuestionList{}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal question list: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the list.
func (q *QuestionList) Scan(value interface{}) error {
	if value == nil {
		*q = QuestionList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for QuestionList", value)
	}
	if len(data) == 0 {
		*q = QuestionList{}
		return nil
	}
	if err := json.Unmarshal(data, q); err != nil {
		return fmt.Errorf("unmarshal question list: %w", err)
	}
	return nil
}

// Quiz is a generated question set bound to a material.
type Quiz struct {
	ID         string         `db:"id" json:"id"`
	MaterialID string         `db:"material_id" json:"material_id"`
	CreatorID  string         `db:"creator_id" json:"creator_id"`
	Difficulty QuizDifficulty `db:"difficulty" json:"difficulty"`
	Questions  QuestionList   `db:"questions" json:"questions"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AnswerList persists a quiz attempt's selected option indexes as JSONB.
type AnswerList []int

// Value marshals the answers to JSON for persistence.
func (a AnswerList) Value() (driver.Value, error) {
	if a == nil {
		a = AnswerList{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal answer list: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the answers.
func (a *AnswerList) Scan(value interface{}) error {
	if value == nil {
		*a = AnswerList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for AnswerList", value)
	}
	if len(data) == 0 {
		*a = AnswerList{}
		return nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("unmarshal answer list: %w", err)
	}
	return nil
}

// QuizAttempt records a user's scored submission.
type QuizAttempt struct {
	ID      string     `db:"id" json:"id"`
	QuizID  string     `db:"quiz_id" json:"quiz_id"`
	UserID  string     `db:"user_id" json:"user_id"`
	Answers AnswerList `db:"answers" json:"answers"`
	Score   float64    `db:"score" json:"score"`
	TakenAt time.Time  `db:"taken_at" json:"taken_at"`
}
