package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/internal/store"
)

const defaultTeacherName = "Teacher"

// connState binds a connection to the identity it declared via a join intent.
type connState struct {
	role        string // "teacher" or "student"
	teacherID   string
	studentID   string
	displayName string
}

// Orchestrator is the protocol state machine. A single mutex serializes all
// intent handlers and timer callbacks, so store mutations within one intent
// are atomic with respect to each other.
type Orchestrator struct {
	mu       sync.Mutex
	store    *store.Store
	sessions *session.Manager
	sender   Sender
	logger   *zap.Logger
	poll     config.PollConfig
	timers   map[string]*time.Timer // questionID -> expiry timer
	conns    map[string]*connState  // clientID -> identity
}

// NewOrchestrator creates the protocol state machine.
func NewOrchestrator(st *store.Store, sessions *session.Manager, sender Sender, poll config.PollConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		sessions: sessions,
		sender:   sender,
		logger:   logger,
		poll:     poll,
		timers:   make(map[string]*time.Timer),
		conns:    make(map[string]*connState),
	}
}

// HandleEvent dispatches one inbound intent. Unknown events are ignored.
func (o *Orchestrator) HandleEvent(clientID, event string, data json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event {
	case EventTeacherJoin:
		o.teacherJoin(clientID, data)
	case EventStudentJoin:
		o.studentJoin(clientID, data)
	case EventAskQuestion:
		o.askQuestion(clientID, data)
	case EventStudentAnswer:
		o.studentAnswer(clientID, data)
	case EventEndQuestion:
		o.endQuestion(clientID, data)
	case EventRemoveStudent:
		o.removeStudent(clientID, data)
	case EventGetPastResults:
		o.getPastResults(clientID)
	case EventEndSession:
		o.endSession(clientID, data)
	case EventCreateTestSession:
		o.createTestSession(clientID)
	case EventChatMessage:
		o.chatMessage(clientID, data)
	default:
		o.logger.Debug("unknown event", zap.String("event", event), zap.String("client_id", clientID))
	}
}

// Disconnect handles a closed connection: students are marked offline and
// the teacher roster is refreshed. Teacher disconnects need no special
// handling.
func (o *Orchestrator) Disconnect(clientID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.conns[clientID]
	delete(o.conns, clientID)
	if !ok || state.role != "student" {
		return
	}
	o.store.SetStudentOffline(clientID)
	o.notifyRoster()
}

func (o *Orchestrator) teacherJoin(clientID string, data json.RawMessage) {
	var payload teacherJoinPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		name = defaultTeacherName
	}

	t := o.store.UpsertTeacher(name)
	o.conns[clientID] = &connState{role: "teacher", teacherID: t.ID, displayName: t.Name}
	o.sessions.Start(t.ID)
	o.sender.Join(clientID, AudienceTeachers)

	sync := stateSyncPayload{
		Students:       o.store.OnlineStudents(),
		CanAskQuestion: o.store.CanAskNewQuestion(),
	}
	if q, ok := o.store.GetActiveQuestion(); ok {
		sync.ActiveQuestion = &q
		if r, ok := o.store.PollResults(q.ID); ok {
			sync.Results = &r
		}
	}
	o.sender.SendToClient(clientID, EventStateSync, sync)
	o.logger.Info("teacher joined", zap.String("teacher_id", t.ID), zap.String("name", t.Name))
}

func (o *Orchestrator) studentJoin(clientID string, data json.RawMessage) {
	var payload studentJoinPayload
	_ = json.Unmarshal(data, &payload)
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		o.sendError(clientID, "Name is required")
		return
	}

	st := o.store.AddStudent(name, clientID)
	o.conns[clientID] = &connState{role: "student", studentID: st.ID, displayName: st.Name}
	o.sender.Join(clientID, AudienceStudents)

	joined := studentJoinedPayload{Student: st}
	if q, ok := o.store.GetActiveQuestion(); ok {
		joined.ActiveQuestion = &q
		joined.HasAnswered = o.store.HasStudentAnswered(q.ID, st.ID)
		if joined.HasAnswered {
			if r, ok := o.store.PollResults(q.ID); ok {
				joined.Results = &r
			}
		}
	}
	o.sender.SendToClient(clientID, EventStudentJoined, joined)
	o.notifyRoster()
	o.logger.Info("student joined", zap.String("student_id", st.ID), zap.String("name", st.Name))
}

func (o *Orchestrator) askQuestion(clientID string, data json.RawMessage) {
	state := o.conns[clientID]
	if state == nil || state.role != "teacher" {
		o.sendError(clientID, "You must join as a teacher first")
		return
	}

	var payload askQuestionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		o.sendError(clientID, "Invalid question payload")
		return
	}
	text := strings.TrimSpace(payload.Text)
	options := make([]string, 0, len(payload.Options))
	for _, opt := range payload.Options {
		if t := strings.TrimSpace(opt); t != "" {
			options = append(options, t)
		}
	}
	if text == "" || len(options) < 2 {
		o.sendError(clientID, "A question needs text and at least 2 options")
		return
	}
	correct := -1
	if payload.CorrectAnswer != nil && *payload.CorrectAnswer >= 0 && *payload.CorrectAnswer < len(options) {
		correct = *payload.CorrectAnswer
	}
	timeLimit := payload.TimeLimit
	if timeLimit == 0 {
		timeLimit = o.poll.DefaultTimeLimit
	}
	if timeLimit < o.poll.MinTimeLimit {
		timeLimit = o.poll.MinTimeLimit
	}
	if timeLimit > o.poll.MaxTimeLimit {
		timeLimit = o.poll.MaxTimeLimit
	}

	if !o.store.CanAskNewQuestion() {
		o.sendError(clientID, "Cannot ask a new question yet. Wait for all students to answer.")
		return
	}

	// Silent supersede: the previous question is closed without a terminal
	// broadcast, and its timer must not fire afterwards.
	if prev, ok := o.store.GetActiveQuestion(); ok {
		o.cancelTimer(prev.ID)
		o.store.DeactivateQuestion(prev.ID)
	}

	poll, ok := o.store.GetActivePoll()
	if !ok {
		poll = o.store.CreatePoll("Live Poll", state.teacherID)
	}
	q := o.store.CreateQuestion(poll.ID, text, options, correct, timeLimit)
	o.sessions.RecordQuestion(state.teacherID, q.ID)

	o.sender.Broadcast(AudienceAll, EventQuestionNew, questionNewPayload{
		Question: q,
		EndTime:  q.EndTime,
	})

	o.timers[q.ID] = time.AfterFunc(time.Duration(timeLimit)*time.Second, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.closeQuestion(q.ID)
	})

	o.sender.Broadcast(AudienceTeachers, EventStudentsUpdate, studentsUpdatePayload{
		Students:       o.store.OnlineStudents(),
		CanAskQuestion: false,
	})
	o.logger.Info("question asked",
		zap.String("question_id", q.ID),
		zap.Int("options", len(options)),
		zap.Int("time_limit", timeLimit))
}

func (o *Orchestrator) studentAnswer(clientID string, data json.RawMessage) {
	state := o.conns[clientID]
	if state == nil || state.role != "student" {
		o.sendError(clientID, "You must join first")
		return
	}

	var payload studentAnswerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		o.sendError(clientID, "Invalid answer payload")
		return
	}

	q, ok := o.store.GetQuestion(payload.QuestionID)
	if !ok || !q.IsActive {
		o.sendError(clientID, "Question is no longer active")
		return
	}
	if payload.SelectedOption < 0 || payload.SelectedOption >= len(q.Options) {
		o.sendError(clientID, "Invalid option selected")
		return
	}
	if o.store.HasStudentAnswered(q.ID, state.studentID) {
		o.sendError(clientID, "You have already answered this question")
		return
	}

	if _, inserted := o.store.SubmitResponse(q.ID, state.studentID, state.displayName, payload.SelectedOption); !inserted {
		o.sendError(clientID, "You have already answered this question")
		return
	}

	results, _ := o.store.PollResults(q.ID)
	canAsk := o.store.CanAskNewQuestion()

	o.sender.SendToClient(clientID, EventAnswerSubmitted, answerSubmittedPayload{Results: results})

	update := resultsUpdatePayload{Results: results, CanAskQuestion: canAsk}
	o.sender.Broadcast(AudienceStudents, EventResultsUpdate, update)
	o.sender.Broadcast(AudienceTeachers, EventResultsUpdate, update)

	if canAsk {
		// Coverage reached: unblock the teacher before the timer fires.
		o.sender.Broadcast(AudienceTeachers, EventStudentsUpdate, studentsUpdatePayload{
			Students:       o.store.OnlineStudents(),
			CanAskQuestion: true,
		})
	}
}

func (o *Orchestrator) endQuestion(clientID string, data json.RawMessage) {
	state := o.conns[clientID]
	if state == nil || state.role != "teacher" {
		o.sendError(clientID, "You must join as a teacher first")
		return
	}
	var payload endQuestionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.QuestionID == "" {
		o.sendError(clientID, "Invalid question id")
		return
	}
	o.closeQuestion(payload.QuestionID)
}

// closeQuestion is the single exit from the open state, used by both the
// manual end and the expiry timer. The timer handle is cancelled before
// anything else so a stale fire can never produce a second terminal
// broadcast. Ending an already-inactive question is a no-op.
// Callers must hold o.mu.
func (o *Orchestrator) closeQuestion(questionID string) {
	o.cancelTimer(questionID)

	q, ok := o.store.GetQuestion(questionID)
	if !ok || !q.IsActive {
		return
	}
	o.store.DeactivateQuestion(questionID)

	var results *models.PollResults
	if r, ok := o.store.PollResults(questionID); ok {
		results = &r
	}
	o.sender.Broadcast(AudienceAll, EventQuestionEnded, questionEndedPayload{Results: results})
	o.sender.Broadcast(AudienceTeachers, EventStudentsUpdate, studentsUpdatePayload{
		Students:       o.store.OnlineStudents(),
		CanAskQuestion: true,
	})
	o.logger.Info("question ended", zap.String("question_id", questionID))
}

func (o *Orchestrator) removeStudent(clientID string, data json.RawMessage) {
	state := o.conns[clientID]
	if state == nil || state.role != "teacher" {
		o.sendError(clientID, "You must join as a teacher first")
		return
	}
	var payload removeStudentPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.StudentID == "" {
		o.sendError(clientID, "Invalid student id")
		return
	}

	if st, ok := o.store.GetStudent(payload.StudentID); ok && st.SocketID != "" {
		delete(o.conns, st.SocketID)
		o.sender.Kick(st.SocketID)
	}
	o.store.RemoveStudent(payload.StudentID)
	o.notifyRoster()
	o.logger.Info("student removed", zap.String("student_id", payload.StudentID))
}

func (o *Orchestrator) getPastResults(clientID string) {
	state := o.conns[clientID]
	if state == nil || state.role != "teacher" {
		o.sendError(clientID, "You must join as a teacher first")
		return
	}
	o.sender.SendToClient(clientID, EventPastResults, pastResultsPayload{
		Results: o.sessions.PastSessions(state.teacherID),
	})
}

func (o *Orchestrator) endSession(clientID string, data json.RawMessage) {
	state := o.conns[clientID]
	if state == nil || state.role != "teacher" {
		o.sendError(clientID, "You must join as a teacher first")
		return
	}
	var payload endSessionPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}
	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = "Class Session"
	}
	ps := o.sessions.Seal(state.teacherID, title)
	o.sender.SendToClient(clientID, EventSessionEnded, sessionEndedPayload{PastSession: ps})
}

func (o *Orchestrator) createTestSession(clientID string) {
	state := o.conns[clientID]
	if state == nil || state.role != "teacher" {
		o.sendError(clientID, "You must join as a teacher first")
		return
	}
	o.sessions.SeedDemo(state.teacherID)
	o.sender.SendToClient(clientID, EventPastResults, pastResultsPayload{
		Results: o.sessions.PastSessions(state.teacherID),
	})
}

func (o *Orchestrator) chatMessage(clientID string, data json.RawMessage) {
	state := o.conns[clientID]
	if state == nil {
		o.sendError(clientID, "You must join first")
		return
	}
	var payload chatPayload
	if err := json.Unmarshal(data, &payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		return
	}
	o.sender.Broadcast(AudienceAll, EventChatBroadcast, models.ChatMessage{
		ID:        uuid.NewString(),
		User:      state.displayName,
		Text:      payload.Text,
		Timestamp: time.Now(),
		IsTeacher: state.role == "teacher",
	})
}

// notifyRoster pushes the online roster and admission flag to teachers.
// Callers must hold o.mu.
func (o *Orchestrator) notifyRoster() {
	o.sender.Broadcast(AudienceTeachers, EventStudentsUpdate, studentsUpdatePayload{
		Students:       o.store.OnlineStudents(),
		CanAskQuestion: o.store.CanAskNewQuestion(),
	})
}

// cancelTimer stops and discards a question's expiry timer. Callers must
// hold o.mu.
func (o *Orchestrator) cancelTimer(questionID string) {
	if t, ok := o.timers[questionID]; ok {
		t.Stop()
		delete(o.timers, questionID)
	}
}

func (o *Orchestrator) sendError(clientID, message string) {
	o.sender.SendToClient(clientID, EventError, errorPayload{Message: message})
}
