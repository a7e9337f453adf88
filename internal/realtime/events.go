package realtime

import (
	"time"

	"github.com/classpulse/backend/internal/models"
)

// Inbound event names (client -> server).
const (
	EventTeacherJoin       = "teacher:join"
	EventStudentJoin       = "student:join"
	EventAskQuestion       = "teacher:askQuestion"
	EventStudentAnswer     = "student:answer"
	EventEndQuestion       = "teacher:endQuestion"
	EventRemoveStudent     = "teacher:removeStudent"
	EventGetPastResults    = "teacher:getPastResults"
	EventEndSession        = "teacher:endSession"
	EventCreateTestSession = "teacher:createTestSession"
	EventChatMessage       = "chat:message"
)

// Outbound event names (server -> client(s)).
const (
	EventStateSync         = "state:sync"
	EventStudentJoined     = "student:joined"
	EventStudentsUpdate    = "students:update"
	EventQuestionNew       = "question:new"
	EventAnswerSubmitted   = "answer:submitted"
	EventResultsUpdate     = "results:update"
	EventQuestionEnded     = "question:ended"
	EventPastResults       = "pastResults:update"
	EventSessionEnded      = "session:ended"
	EventError             = "error"
	EventKicked            = "kicked"
	EventChatBroadcast     = "chat:message"
)

// Inbound payloads.

type teacherJoinPayload struct {
	Name string `json:"name"`
}

type studentJoinPayload struct {
	Name string `json:"name"`
}

type askQuestionPayload struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	TimeLimit     int      `json:"timeLimit"`
	CorrectAnswer *int     `json:"correctAnswer"`
}

type studentAnswerPayload struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
}

type endQuestionPayload struct {
	QuestionID string `json:"questionId"`
}

type removeStudentPayload struct {
	StudentID string `json:"studentId"`
}

type endSessionPayload struct {
	Title string `json:"title"`
}

type chatPayload struct {
	Text string `json:"text"`
}

// Outbound payloads.

type stateSyncPayload struct {
	ActiveQuestion *models.Question    `json:"activeQuestion"`
	Students       []models.Student    `json:"students"`
	CanAskQuestion bool                `json:"canAskQuestion"`
	Results        *models.PollResults `json:"results"`
}

type studentJoinedPayload struct {
	Student        models.Student      `json:"student"`
	ActiveQuestion *models.Question    `json:"activeQuestion"`
	HasAnswered    bool                `json:"hasAnswered"`
	Results        *models.PollResults `json:"results"`
}

type studentsUpdatePayload struct {
	Students       []models.Student `json:"students"`
	CanAskQuestion bool             `json:"canAskQuestion"`
}

type questionNewPayload struct {
	Question models.Question `json:"question"`
	EndTime  time.Time       `json:"endTime"`
}

type answerSubmittedPayload struct {
	Results models.PollResults `json:"results"`
}

type resultsUpdatePayload struct {
	Results        models.PollResults `json:"results"`
	CanAskQuestion bool               `json:"canAskQuestion"`
}

type questionEndedPayload struct {
	Results *models.PollResults `json:"results"`
}

type pastResultsPayload struct {
	Results []models.PastSession `json:"results"`
}

type sessionEndedPayload struct {
	PastSession *models.PastSession `json:"pastSession"`
}

type errorPayload struct {
	Message string `json:"message"`
}
