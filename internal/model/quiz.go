package model

import (
	"fmt"
	"strconv"
)

// Option is one answer choice of a question.
type Option struct {
	ID   ID     `json:"id"`
	Text string `json:"text"`
}

// Question is a normalised quiz question as held by a session.
type Question struct {
	ID               ID       `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	Marks            float64  `json:"marks"`
	SelectedOptionID *ID      `json:"selected_option_id,omitempty"`
	IsCorrect        *bool    `json:"isCorrect,omitempty"`
}

// Quiz is a quiz as listed by the backend for a course.
type Quiz struct {
	ID          ID            `json:"id"`
	Title       string        `json:"title"`
	IsSubmitted bool          `json:"isSubmitted"`
	Questions   []RawQuestion `json:"questions"`
}

// RawQuestion is the question shape as the backend (or a caller) sends it.
// Either question_text or text may carry the prompt.
type RawQuestion struct {
	ID               *ID         `json:"id,omitempty"`
	QuestionText     string      `json:"question_text,omitempty"`
	Text             string      `json:"text,omitempty"`
	Options          []RawOption `json:"options"`
	SelectedOptionID *ID         `json:"selected_option_id,omitempty"`
	IsCorrect        *bool       `json:"isCorrect,omitempty"`
	Marks            *float64    `json:"marks,omitempty"`
}

// RawOption is the option shape as sent by the backend.
type RawOption struct {
	ID   *ID    `json:"id,omitempty"`
	Text string `json:"text"`
}

// NormalizeQuestions converts raw questions into session questions, filling
// gaps: missing ids fall back to the index, missing text becomes
// "Question N"/"Option N" and marks default to 1.
func NormalizeQuestions(raw []RawQuestion) []Question {
	out := make([]Question, 0, len(raw))
	for i, rq := range raw {
		q := Question{
			ID:               indexID(rq.ID, i),
			Text:             rq.QuestionText,
			SelectedOptionID: rq.SelectedOptionID,
			IsCorrect:        rq.IsCorrect,
			Marks:            1,
		}
		if q.Text == "" {
			q.Text = rq.Text
		}
		if q.Text == "" {
			q.Text = fmt.Sprintf("Question %d", i+1)
		}
		if rq.Marks != nil && *rq.Marks > 0 {
			q.Marks = *rq.Marks
		}

		q.Options = make([]Option, 0, len(rq.Options))
		for j, ro := range rq.Options {
			text := ro.Text
			if text == "" {
				text = fmt.Sprintf("Option %d", j+1)
			}
			q.Options = append(q.Options, Option{ID: indexID(ro.ID, j), Text: text})
		}
		out = append(out, q)
	}
	return out
}

// OptionIndex returns the index of the option with the given id, or -1.
func (q Question) OptionIndex(id ID) int {
	for i, o := range q.Options {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func indexID(id *ID, index int) ID {
	if id == nil || id.IsZero() {
		return ID(strconv.Itoa(index))
	}
	return *id
}
