package models

import "time"

// ResponseSummary is one student's vote inside aggregated results,
// preserving submission order.
type ResponseSummary struct {
	StudentName    string `json:"studentName"`
	SelectedOption int    `json:"selectedOption"`
}

// PollResults is the derived tally for one question. It is always recomputed
// from the store, never cached.
type PollResults struct {
	QuestionID   string            `json:"questionId"`
	QuestionText string            `json:"questionText"`
	Options      []string          `json:"options"`
	Votes        []int             `json:"votes"`
	TotalVotes   int               `json:"totalVotes"`
	Responses    []ResponseSummary `json:"responses"`
}

// QuestionSnapshot is a deep-copied question with its results frozen at
// session seal time.
type QuestionSnapshot struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	Options       []string    `json:"options"`
	CorrectAnswer int         `json:"correctAnswer"`
	TimeLimit     int         `json:"timeLimit"`
	Results       PollResults `json:"results"`
}

// PastSession is a sealed, immutable record of one classroom session.
type PastSession struct {
	ID        string             `json:"id"`
	TeacherID string             `json:"teacherId"`
	Title     string             `json:"title"`
	StartedAt time.Time          `json:"startedAt"`
	EndedAt   time.Time          `json:"endedAt"`
	Questions []QuestionSnapshot `json:"questions"`
}

// ChatMessage is a fan-out-only chat event; never persisted.
type ChatMessage struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsTeacher bool      `json:"isTeacher"`
}
