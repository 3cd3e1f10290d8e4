package model

// Answer is one entry of a submission. Unanswered questions carry a nil
// SelectedOptionID, which encodes as JSON null.
type Answer struct {
	QuestionID       ID  `json:"question_id"`
	SelectedOptionID *ID `json:"selected_option_id"`
}

// QuizSubmission is the body of POST /api/quiz/submit.
type QuizSubmission struct {
	QuizID   ID       `json:"quiz_id"`
	CourseID ID       `json:"course_id"`
	Answers  []Answer `json:"answers"`
}

// AnswerKeySubmission is the body of the admin answer-key endpoint.
type AnswerKeySubmission struct {
	Answers []Answer `json:"answers"`
}

// SubmitResult is the backend's reply to a submission.
type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CourseQuizzesResponse is the reply of GET /api/course/{courseId}/quizzes.
type CourseQuizzesResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Quizzes []Quiz `json:"quizzes"`
}

// AnswerKeyResponse is the reply of GET /api/admin/course/{c}/quiz/{q}/answers.
type AnswerKeyResponse struct {
	Success bool     `json:"success"`
	Answers []Answer `json:"answers"`
}
