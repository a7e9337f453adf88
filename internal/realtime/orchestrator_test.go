package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/internal/store"
)

// fakeSender records every fan-out the orchestrator performs. Safe for
// concurrent use because expiry timers fire on their own goroutines.
type fakeSender struct {
	mu         sync.Mutex
	broadcasts []sentEvent
	direct     []sentEvent
	joins      map[string]Audience
	kicked     []string
}

type sentEvent struct {
	audience Audience
	clientID string
	event    string
	payload  interface{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{joins: make(map[string]Audience)}
}

func (f *fakeSender) Join(clientID string, audience Audience) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins[clientID] = audience
}

func (f *fakeSender) Broadcast(audience Audience, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, sentEvent{audience: audience, event: event, payload: payload})
}

func (f *fakeSender) SendToClient(clientID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, sentEvent{clientID: clientID, event: event, payload: payload})
}

func (f *fakeSender) Kick(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, clientID)
}

func (f *fakeSender) broadcastCount(event string, match func(sentEvent) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.broadcasts {
		if e.event == event && (match == nil || match(e)) {
			n++
		}
	}
	return n
}

func (f *fakeSender) lastDirect(clientID, event string) (sentEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.direct) - 1; i >= 0; i-- {
		if f.direct[i].clientID == clientID && f.direct[i].event == event {
			return f.direct[i], true
		}
	}
	return sentEvent{}, false
}

func (f *fakeSender) kickedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kicked...)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *fakeSender) {
	t.Helper()
	logger := zap.NewNop()
	st := store.New(logger)
	sessions := session.NewManager(st, nil, logger)
	sender := newFakeSender()
	poll := config.PollConfig{DefaultTimeLimit: 60, MinTimeLimit: 1, MaxTimeLimit: 300}
	return NewOrchestrator(st, sessions, sender, poll, logger), st, sender
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func joinTeacher(t *testing.T, o *Orchestrator, clientID string) {
	t.Helper()
	o.HandleEvent(clientID, EventTeacherJoin, nil)
}

func joinStudent(t *testing.T, o *Orchestrator, clientID, name string) {
	t.Helper()
	o.HandleEvent(clientID, EventStudentJoin, raw(t, map[string]string{"name": name}))
}

func askQuestion(t *testing.T, o *Orchestrator, clientID, text string, options []string, timeLimit int) models.Question {
	t.Helper()
	o.HandleEvent(clientID, EventAskQuestion, raw(t, map[string]interface{}{
		"text": text, "options": options, "timeLimit": timeLimit,
	}))
	q, ok := o.store.GetActiveQuestion()
	if !ok {
		t.Fatalf("expected an active question after ask")
	}
	return q
}

func TestColorScenario(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	joinStudent(t, o, "bo", "Bo")

	q := askQuestion(t, o, "teach", "Color?", []string{"Red", "Blue"}, 60)

	if st.CanAskNewQuestion() {
		t.Fatal("admission must be false with an open question and no answers")
	}

	o.HandleEvent("amy", EventStudentAnswer, raw(t, map[string]interface{}{
		"questionId": q.ID, "selectedOption": 0,
	}))
	if st.CanAskNewQuestion() {
		t.Fatal("admission must stay false at partial coverage")
	}

	o.HandleEvent("bo", EventStudentAnswer, raw(t, map[string]interface{}{
		"questionId": q.ID, "selectedOption": 1,
	}))

	results, _ := st.PollResults(q.ID)
	if results.TotalVotes != 2 || results.Votes[0] != 1 || results.Votes[1] != 1 {
		t.Errorf("results = %+v, want votes [1,1] totalVotes 2", results)
	}
	if !st.CanAskNewQuestion() {
		t.Error("admission must flip true immediately on full coverage, before timeout")
	}

	// Coverage unblocks the teacher via a roster update carrying canAsk=true.
	unblocked := sender.broadcastCount(EventStudentsUpdate, func(e sentEvent) bool {
		p, ok := e.payload.(studentsUpdatePayload)
		return ok && e.audience == AudienceTeachers && p.CanAskQuestion
	})
	if unblocked == 0 {
		t.Error("expected a students:update with canAskQuestion=true after full coverage")
	}
	// The question stays open until timer or explicit end.
	if got, _ := st.GetActiveQuestion(); got.ID != q.ID {
		t.Error("question must remain open after coverage is reached")
	}
}

func TestDuplicateAnswerRejected(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	q := askQuestion(t, o, "teach", "Q?", []string{"A", "B"}, 60)

	answer := raw(t, map[string]interface{}{"questionId": q.ID, "selectedOption": 0})
	o.HandleEvent("amy", EventStudentAnswer, answer)
	o.HandleEvent("amy", EventStudentAnswer, answer)

	if got := len(st.ResponsesByQuestion(q.ID)); got != 1 {
		t.Errorf("expected exactly 1 stored response, got %d", got)
	}
	errEvent, ok := sender.lastDirect("amy", EventError)
	if !ok {
		t.Fatal("expected an error event for the duplicate answer")
	}
	if msg := errEvent.payload.(errorPayload).Message; msg != "You have already answered this question" {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestAnswerValidation(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	q := askQuestion(t, o, "teach", "Q?", []string{"A", "B"}, 60)

	tests := []struct {
		name    string
		client  string
		payload map[string]interface{}
		wantErr string
	}{
		{
			name:    "unknown question",
			client:  "amy",
			payload: map[string]interface{}{"questionId": "missing", "selectedOption": 0},
			wantErr: "Question is no longer active",
		},
		{
			name:    "option out of range",
			client:  "amy",
			payload: map[string]interface{}{"questionId": q.ID, "selectedOption": 5},
			wantErr: "Invalid option selected",
		},
		{
			name:    "not joined",
			client:  "ghost",
			payload: map[string]interface{}{"questionId": q.ID, "selectedOption": 0},
			wantErr: "You must join first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o.HandleEvent(tt.client, EventStudentAnswer, raw(t, tt.payload))
			errEvent, ok := sender.lastDirect(tt.client, EventError)
			if !ok {
				t.Fatal("expected an error event")
			}
			if msg := errEvent.payload.(errorPayload).Message; msg != tt.wantErr {
				t.Errorf("error = %q, want %q", msg, tt.wantErr)
			}
		})
	}
}

func TestTimerEndsQuestionExactlyOnce(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	q := askQuestion(t, o, "teach", "Q?", []string{"A", "B"}, 1)

	time.Sleep(1500 * time.Millisecond)

	if active, ok := st.GetActiveQuestion(); ok {
		t.Errorf("expected no active question after expiry, got %s", active.ID)
	}
	ended := sender.broadcastCount(EventQuestionEnded, func(e sentEvent) bool {
		p, ok := e.payload.(questionEndedPayload)
		return ok && p.Results != nil && p.Results.QuestionID == q.ID
	})
	if ended != 1 {
		t.Errorf("expected exactly 1 question:ended broadcast, got %d", ended)
	}
}

func TestManualEndCancelsTimer(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	q := askQuestion(t, o, "teach", "Q?", []string{"A", "B"}, 1)

	o.HandleEvent("teach", EventEndQuestion, raw(t, map[string]string{"questionId": q.ID}))
	// A later timer fire must find the question closed and stay silent.
	time.Sleep(1500 * time.Millisecond)

	ended := sender.broadcastCount(EventQuestionEnded, func(e sentEvent) bool {
		p, ok := e.payload.(questionEndedPayload)
		return ok && p.Results != nil && p.Results.QuestionID == q.ID
	})
	if ended != 1 {
		t.Errorf("expected exactly 1 question:ended broadcast, got %d", ended)
	}
}

func TestSupersededQuestionNeverBroadcastsEnd(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")

	q1 := askQuestion(t, o, "teach", "First?", []string{"A", "B"}, 1)
	o.HandleEvent("amy", EventStudentAnswer, raw(t, map[string]interface{}{
		"questionId": q1.ID, "selectedOption": 0,
	}))

	// Full coverage reopens admission; asking again supersedes q1 silently.
	q2 := askQuestion(t, o, "teach", "Second?", []string{"A", "B"}, 60)
	if q2.ID == q1.ID {
		t.Fatal("expected a new question")
	}
	if got, _ := st.GetQuestion(q1.ID); got.IsActive {
		t.Error("superseded question must be deactivated")
	}

	time.Sleep(1500 * time.Millisecond)

	endedQ1 := sender.broadcastCount(EventQuestionEnded, func(e sentEvent) bool {
		p, ok := e.payload.(questionEndedPayload)
		return ok && p.Results != nil && p.Results.QuestionID == q1.ID
	})
	if endedQ1 != 0 {
		t.Errorf("superseded question produced %d question:ended broadcasts, want 0", endedQ1)
	}
	if got, _ := st.GetActiveQuestion(); got.ID != q2.ID {
		t.Error("expected the superseding question to stay active")
	}
}

func TestEndQuestionIdempotent(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	q := askQuestion(t, o, "teach", "Q?", []string{"A", "B"}, 60)

	end := raw(t, map[string]string{"questionId": q.ID})
	o.HandleEvent("teach", EventEndQuestion, end)
	o.HandleEvent("teach", EventEndQuestion, end)

	ended := sender.broadcastCount(EventQuestionEnded, nil)
	if ended != 1 {
		t.Errorf("expected 1 question:ended broadcast, got %d", ended)
	}
}

func TestAdmissionDeniedAsk(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	askQuestion(t, o, "teach", "First?", []string{"A", "B"}, 60)

	o.HandleEvent("teach", EventAskQuestion, raw(t, map[string]interface{}{
		"text": "Second?", "options": []string{"A", "B"}, "timeLimit": 60,
	}))

	errEvent, ok := sender.lastDirect("teach", EventError)
	if !ok {
		t.Fatal("expected an error event for admission-denied ask")
	}
	if msg := errEvent.payload.(errorPayload).Message; msg != "Cannot ask a new question yet. Wait for all students to answer." {
		t.Errorf("unexpected error message %q", msg)
	}
	if got := sender.broadcastCount(EventQuestionNew, nil); got != 1 {
		t.Errorf("expected only the first question:new, got %d", got)
	}
}

func TestAskRequiresTeacherRole(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinStudent(t, o, "amy", "Amy")
	o.HandleEvent("amy", EventAskQuestion, raw(t, map[string]interface{}{
		"text": "Q?", "options": []string{"A", "B"},
	}))

	if _, ok := sender.lastDirect("amy", EventError); !ok {
		t.Error("expected an error event when a student asks a question")
	}
	if got := sender.broadcastCount(EventQuestionNew, nil); got != 0 {
		t.Errorf("expected no question:new, got %d", got)
	}
}

func TestRemoveStudentKicksAndIsIdempotent(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	amy, _ := st.GetStudentBySocketID("amy")

	remove := raw(t, map[string]string{"studentId": amy.ID})
	o.HandleEvent("teach", EventRemoveStudent, remove)

	if kicked := sender.kickedIDs(); len(kicked) != 1 || kicked[0] != "amy" {
		t.Errorf("expected Amy's connection kicked, got %v", kicked)
	}
	if _, ok := st.GetStudent(amy.ID); ok {
		t.Error("expected student record deleted")
	}

	// Removing the same id again is a harmless no-op.
	o.HandleEvent("teach", EventRemoveStudent, remove)
	if kicked := sender.kickedIDs(); len(kicked) != 1 {
		t.Errorf("second removal must not kick again, got %v", kicked)
	}
}

func TestStudentRejoinAfterDisconnect(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "conn-1", "Amy")
	first, _ := st.GetStudentBySocketID("conn-1")

	o.Disconnect("conn-1")
	if st2, _ := st.GetStudent(first.ID); st2.IsOnline {
		t.Fatal("expected Amy offline after disconnect")
	}

	joinStudent(t, o, "conn-2", "Amy")
	joined, ok := sender.lastDirect("conn-2", EventStudentJoined)
	if !ok {
		t.Fatal("expected student:joined reply")
	}
	got := joined.payload.(studentJoinedPayload).Student
	if got.ID != first.ID {
		t.Errorf("rejoin id = %s, want %s", got.ID, first.ID)
	}
	if !got.IsOnline {
		t.Error("expected rejoined student online")
	}
	if rows := len(st.AllStudents()); rows != 1 {
		t.Errorf("expected 1 student row, got %d", rows)
	}
}

func TestTeacherJoinStateSync(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "t1")
	joinStudent(t, o, "amy", "Amy")
	q := askQuestion(t, o, "t1", "Q?", []string{"A", "B"}, 60)

	// A second tab joining mid-question gets the full picture.
	joinTeacher(t, o, "t2")
	syncEvent, ok := sender.lastDirect("t2", EventStateSync)
	if !ok {
		t.Fatal("expected state:sync reply")
	}
	payload := syncEvent.payload.(stateSyncPayload)
	if payload.ActiveQuestion == nil || payload.ActiveQuestion.ID != q.ID {
		t.Error("expected active question in state sync")
	}
	if payload.CanAskQuestion {
		t.Error("expected canAskQuestion=false with an unanswered open question")
	}
	if len(payload.Students) != 1 {
		t.Errorf("expected 1 online student, got %d", len(payload.Students))
	}
}

func TestEndSessionSealsAndReplies(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")
	q := askQuestion(t, o, "teach", "Q?", []string{"A", "B"}, 60)
	o.HandleEvent("amy", EventStudentAnswer, raw(t, map[string]interface{}{
		"questionId": q.ID, "selectedOption": 1,
	}))

	o.HandleEvent("teach", EventEndSession, raw(t, map[string]string{"title": "Morning Class"}))

	reply, ok := sender.lastDirect("teach", EventSessionEnded)
	if !ok {
		t.Fatal("expected session:ended reply")
	}
	ps := reply.payload.(sessionEndedPayload).PastSession
	if ps == nil || ps.Title != "Morning Class" || len(ps.Questions) != 1 {
		t.Errorf("unexpected sealed session %+v", ps)
	}

	o.HandleEvent("teach", EventGetPastResults, nil)
	past, ok := sender.lastDirect("teach", EventPastResults)
	if !ok {
		t.Fatal("expected pastResults:update reply")
	}
	if got := len(past.payload.(pastResultsPayload).Results); got != 1 {
		t.Errorf("expected 1 past session, got %d", got)
	}
	_ = st
}

func TestEndSessionWithNothingToSeal(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	o.HandleEvent("teach", EventEndSession, raw(t, map[string]string{"title": "Empty"}))

	reply, ok := sender.lastDirect("teach", EventSessionEnded)
	if !ok {
		t.Fatal("expected session:ended reply even with nothing to seal")
	}
	if reply.payload.(sessionEndedPayload).PastSession != nil {
		t.Error("expected null pastSession for empty seal")
	}
}

func TestCreateTestSessionNeverPanics(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	o.HandleEvent("teach", EventCreateTestSession, nil)

	past, ok := sender.lastDirect("teach", EventPastResults)
	if !ok {
		t.Fatal("expected pastResults:update after seeding")
	}
	if got := len(past.payload.(pastResultsPayload).Results); got != 1 {
		t.Errorf("expected the seeded demo session, got %d", got)
	}
}

func TestChatMessageTagsSender(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)

	joinTeacher(t, o, "teach")
	joinStudent(t, o, "amy", "Amy")

	o.HandleEvent("amy", EventChatMessage, raw(t, map[string]string{"text": "hello"}))
	o.HandleEvent("teach", EventChatMessage, raw(t, map[string]string{"text": "welcome"}))

	var msgs []models.ChatMessage
	sender.mu.Lock()
	for _, e := range sender.broadcasts {
		if e.event == EventChatBroadcast {
			msgs = append(msgs, e.payload.(models.ChatMessage))
		}
	}
	sender.mu.Unlock()

	if len(msgs) != 2 {
		t.Fatalf("expected 2 chat broadcasts, got %d", len(msgs))
	}
	if msgs[0].User != "Amy" || msgs[0].IsTeacher {
		t.Errorf("student message mis-tagged: %+v", msgs[0])
	}
	if msgs[1].User != "Teacher" || !msgs[1].IsTeacher {
		t.Errorf("teacher message mis-tagged: %+v", msgs[1])
	}
	if msgs[0].ID == "" || msgs[0].Timestamp.IsZero() {
		t.Error("expected server-assigned id and timestamp")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)
	o.HandleEvent("x", "no:such", raw(t, map[string]string{}))
	if len(sender.direct) != 0 || len(sender.broadcasts) != 0 {
		t.Error("unknown events must produce no traffic")
	}
}
