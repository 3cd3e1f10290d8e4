package model

// SnapshotVersion is written into every persisted snapshot.
const SnapshotVersion = 1

// Snapshot is the persisted form of a quiz session. Field names are kept
// stable so snapshots written by earlier client builds stay readable.
type Snapshot struct {
	SelectedOptions map[int]int `json:"selectedOptions"`
	CurrentQuestion int         `json:"currentQuestion"`
	TimeRemaining   int         `json:"timeRemaining"`
	QuizStartTime   int64       `json:"quizStartTime"`
	LastSaved       int64       `json:"lastSaved"`
	Version         int         `json:"version"`
	SaveID          string      `json:"saveId,omitempty"`
}

// AnsweredCount reports how many questions have a selection.
func (s *Snapshot) AnsweredCount() int {
	if s == nil {
		return 0
	}
	return len(s.SelectedOptions)
}
