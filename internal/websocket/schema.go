package websocket

import "github.com/stemsi/quizdesk/internal/session"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect Action = "select"
	ActionGoTo   Action = "goto"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SelectRequest toggles one option of one question.
type SelectRequest struct {
	Action        Action `json:"action"`
	QuestionIndex *int   `json:"question_index"`
	OptionIndex   *int   `json:"option_index"`
}

// GoToRequest moves the session to a question.
type GoToRequest struct {
	Action        Action `json:"action"`
	QuestionIndex *int   `json:"question_index"`
}

// SubmitRequest asks for a manual submission.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// Session events (tick, saved, submitted, submit_failed, expired, state) are
// written as session.Event. The ones below only answer client actions.
type Event string

const (
	EventError Event = "error"
	EventPong  Event = "pong"
	EventState Event = Event(session.EventState)
)

// StateResponse carries the session view after an action.
type StateResponse struct {
	Event Event        `json:"event"`
	State session.View `json:"state"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
