package session

import "github.com/stemsi/quizdesk/internal/model"

// View is what the quiz screen renders.
type View struct {
	QuizID            string            `json:"quiz_id"`
	CourseID          string            `json:"course_id"`
	Mode              model.SessionMode `json:"mode"`
	Status            Status            `json:"status"`
	Questions         []model.Question  `json:"questions"`
	SelectedOptions   map[int]int       `json:"selected_options"`
	CurrentQuestion   int               `json:"current_question"`
	TotalQuestions    int               `json:"total_questions"`
	AnsweredCount     int               `json:"answered_count"`
	CompletionPercent int               `json:"completion_percent"`
	TimeRemaining     int               `json:"time_remaining"`
	TimeLabel         string            `json:"time_label,omitempty"`
	TimerBand         TimerBand         `json:"timer_band,omitempty"`
	SessionStartTime  int64             `json:"session_start_time"`
	IsSubmitted       bool              `json:"is_submitted"`
}

// View returns the current state for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	selected := make(map[int]int, len(s.selected))
	for k, v := range s.selected {
		selected[k] = v
	}

	v := View{
		QuizID:            s.quizID,
		CourseID:          s.courseID,
		Mode:              s.mode,
		Status:            s.status,
		Questions:         s.questions,
		SelectedOptions:   selected,
		CurrentQuestion:   s.current,
		TotalQuestions:    len(s.questions),
		AnsweredCount:     len(selected),
		CompletionPercent: CompletionPercent(len(selected), len(s.questions)),
		SessionStartTime:  s.startedAt.UnixMilli(),
		IsSubmitted:       s.status == StatusSubmitted,
	}
	if s.mode == model.SessionModeTimed {
		v.TimeRemaining = s.remainingLocked()
		v.TimeLabel = FormatClock(v.TimeRemaining)
		v.TimerBand = BandFor(v.TimeRemaining)
	}
	return v
}
