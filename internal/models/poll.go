// Package models defines the entity and wire types shared across the server.
package models

import "time"

// Teacher is a teacher identity, keyed by case-insensitive name.
type Teacher struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Poll groups the questions of one live polling run. At most one poll is
// active at a time.
type Poll struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	TeacherID string    `json:"teacherId"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}

// Question is a timed multiple-choice question. At most one question is
// active at a time; EndTime = CreatedAt + TimeLimit seconds.
type Question struct {
	ID            string    `json:"id"`
	PollID        string    `json:"pollId"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correctAnswer"` // option index, -1 when not provided
	TimeLimit     int       `json:"timeLimit"`     // seconds
	CreatedAt     time.Time `json:"createdAt"`
	IsActive      bool      `json:"isActive"`
	EndTime       time.Time `json:"endTime"`
}

// Student is a participant, keyed by case-insensitive name. Re-joining under
// the same name reuses the identity.
type Student struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
	IsOnline bool      `json:"isOnline"`
	SocketID string    `json:"socketId,omitempty"` // owning connection, empty while offline
}

// Response is a student's answer to a question. At most one exists per
// (question, student) pair; never mutated or deleted.
type Response struct {
	ID             string    `json:"id"`
	QuestionID     string    `json:"questionId"`
	StudentID      string    `json:"studentId"`
	StudentName    string    `json:"studentName"`
	SelectedOption int       `json:"selectedOption"`
	AnsweredAt     time.Time `json:"answeredAt"`
}
