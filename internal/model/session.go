package model

// SessionMode selects how a quiz session behaves.
type SessionMode string

const (
	// SessionModeTimed is a student attempt with a time budget.
	SessionModeTimed SessionMode = "timed"
	// SessionModeAuthoring is an admin filling in the answer key; untimed.
	SessionModeAuthoring SessionMode = "authoring"
	// SessionModeReview is a read-only view of a submitted quiz.
	SessionModeReview SessionMode = "review"
)

// OpenSessionRequest is the payload for opening a quiz session.
type OpenSessionRequest struct {
	QuizID        string        `json:"quiz_id" binding:"required,storage_id"`
	CourseID      string        `json:"course_id" binding:"required,storage_id"`
	Mode          SessionMode   `json:"mode" binding:"omitempty,oneof=timed authoring review"`
	IsSubmitted   bool          `json:"is_submitted"`
	Questions     []RawQuestion `json:"questions" binding:"omitempty,dive"`
	ExistingState *Snapshot     `json:"existing_state" binding:"omitempty"`
}

// SelectOptionRequest toggles the selection of one option.
type SelectOptionRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required,min=0"`
	OptionIndex   *int `json:"option_index" binding:"required,min=0"`
}

// GoToRequest moves to a question.
type GoToRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required"`
}

// AppStateRequest reports an app lifecycle transition.
type AppStateRequest struct {
	State string `json:"state" binding:"required,oneof=active background inactive"`
}

// CredentialsRequest hands over the token issued at sign-in.
type CredentialsRequest struct {
	Token string `json:"token" binding:"required"`
	Role  string `json:"role" binding:"required,oneof=student admin"`
}
