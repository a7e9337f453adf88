// Package store holds the in-memory authoritative tables for the polling
// server and the derivations computed from them. All mutation goes through
// Store methods; callers receive value copies, never live references.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Store owns every entity table. Classroom-scale cardinalities (tens of
// participants), so linear scans are acceptable.
type Store struct {
	mu           sync.RWMutex
	logger       *zap.Logger
	teachers     map[string]*models.Teacher
	polls        map[string]*models.Poll
	questions    map[string]*models.Question
	students     map[string]*models.Student
	responses    []*models.Response // insertion order preserved for result summaries
	pastSessions []*models.PastSession
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	return &Store{
		logger:    logger,
		teachers:  make(map[string]*models.Teacher),
		polls:     make(map[string]*models.Poll),
		questions: make(map[string]*models.Question),
		students:  make(map[string]*models.Student),
	}
}

// UpsertTeacher finds a teacher by case-insensitive name or creates one,
// updating lastActiveAt either way.
func (s *Store) UpsertTeacher(name string) models.Teacher {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, t := range s.teachers {
		if strings.EqualFold(t.Name, name) {
			t.LastActiveAt = now
			return *t
		}
	}
	t := &models.Teacher{
		ID:           uuid.NewString(),
		Name:         name,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.teachers[t.ID] = t
	return *t
}

// GetTeacher returns a teacher by id.
func (s *Store) GetTeacher(id string) (models.Teacher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teachers[id]
	if !ok {
		return models.Teacher{}, false
	}
	return *t, true
}

// CreatePoll creates an active poll, deactivating any previously active one
// so at most one poll is active at a time.
func (s *Store) CreatePoll(title, teacherID string) models.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.polls {
		p.IsActive = false
	}
	p := &models.Poll{
		ID:        uuid.NewString(),
		Title:     title,
		TeacherID: teacherID,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	s.polls[p.ID] = p
	return *p
}

// GetActivePoll returns the currently active poll, if any.
func (s *Store) GetActivePoll() (models.Poll, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.polls {
		if p.IsActive {
			return *p, true
		}
	}
	return models.Poll{}, false
}

// CreateQuestion creates an active question with endTime = now + timeLimit.
func (s *Store) CreateQuestion(pollID, text string, options []string, correctAnswer, timeLimit int) models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	q := &models.Question{
		ID:            uuid.NewString(),
		PollID:        pollID,
		Text:          text,
		Options:       append([]string(nil), options...),
		CorrectAnswer: correctAnswer,
		TimeLimit:     timeLimit,
		CreatedAt:     now,
		IsActive:      true,
		EndTime:       now.Add(time.Duration(timeLimit) * time.Second),
	}
	s.questions[q.ID] = q
	return copyQuestion(q)
}

// GetQuestion returns a question by id.
func (s *Store) GetQuestion(id string) (models.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return models.Question{}, false
	}
	return copyQuestion(q), true
}

// GetActiveQuestion returns the single active question, if any.
func (s *Store) GetActiveQuestion() (models.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.activeQuestionLocked()
	if !ok {
		return models.Question{}, false
	}
	return copyQuestion(q), true
}

// DeactivateQuestion marks a question inactive. Unknown ids are a no-op.
func (s *Store) DeactivateQuestion(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.questions[id]; ok {
		q.IsActive = false
	}
}

// AddStudent upserts a student by case-insensitive name. Re-joining reuses
// the existing identity, flipping it back online and rebinding the socket.
func (s *Store) AddStudent(name, socketID string) models.Student {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.students {
		if strings.EqualFold(st.Name, name) {
			st.IsOnline = true
			st.SocketID = socketID
			return *st
		}
	}
	st := &models.Student{
		ID:       uuid.NewString(),
		Name:     name,
		JoinedAt: time.Now(),
		IsOnline: true,
		SocketID: socketID,
	}
	s.students[st.ID] = st
	return *st
}

// GetStudent returns a student by id.
func (s *Store) GetStudent(id string) (models.Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return models.Student{}, false
	}
	return *st, true
}

// GetStudentBySocketID returns the student owning a connection.
func (s *Store) GetStudentBySocketID(socketID string) (models.Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if socketID == "" {
		return models.Student{}, false
	}
	for _, st := range s.students {
		if st.SocketID == socketID {
			return *st, true
		}
	}
	return models.Student{}, false
}

// OnlineStudents returns online students ordered by join time.
func (s *Store) OnlineStudents() []models.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onlineStudentsLocked()
}

// AllStudents returns every student ordered by join time.
func (s *Store) AllStudents() []models.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, *st)
	}
	sortStudents(out)
	return out
}

// SetStudentOffline clears the socket binding for whichever student owns it.
func (s *Store) SetStudentOffline(socketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if socketID == "" {
		return
	}
	for _, st := range s.students {
		if st.SocketID == socketID {
			st.IsOnline = false
			st.SocketID = ""
			return
		}
	}
}

// RemoveStudent deletes the student record entirely. Responses referencing it
// remain; aggregation uses the captured studentName, not a live join.
func (s *Store) RemoveStudent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[id]; !ok {
		return false
	}
	delete(s.students, id)
	return true
}

// SubmitResponse records a student's answer. The second insert for the same
// (question, student) pair is refused: the existing response is returned
// with ok=false.
func (s *Store) SubmitResponse(questionID, studentID, studentName string, selectedOption int) (models.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.responses {
		if r.QuestionID == questionID && r.StudentID == studentID {
			return *r, false
		}
	}
	r := &models.Response{
		ID:             uuid.NewString(),
		QuestionID:     questionID,
		StudentID:      studentID,
		StudentName:    studentName,
		SelectedOption: selectedOption,
		AnsweredAt:     time.Now(),
	}
	s.responses = append(s.responses, r)
	return *r, true
}

// HasStudentAnswered reports whether a response exists for the pair.
func (s *Store) HasStudentAnswered(questionID, studentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.responses {
		if r.QuestionID == questionID && r.StudentID == studentID {
			return true
		}
	}
	return false
}

// ResponsesByQuestion returns the question's responses in submission order.
func (s *Store) ResponsesByQuestion(questionID string) []models.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responsesByQuestionLocked(questionID)
}

// CanAskNewQuestion is the single admission rule: true when no question is
// active, the active question has expired, nobody is online, or every online
// student has answered the active question.
func (s *Store) CanAskNewQuestion() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.activeQuestionLocked()
	if !ok {
		return true
	}
	if time.Now().After(q.EndTime) {
		return true
	}
	online := s.onlineStudentsLocked()
	if len(online) == 0 {
		return true
	}
	return len(s.responsesByQuestionLocked(q.ID)) >= len(online)
}

// AddPastSession stores a sealed session record.
func (s *Store) AddPastSession(ps models.PastSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pastSessions = append(s.pastSessions, &ps)
}

// PastSessions returns a teacher's sealed sessions, most recent first.
func (s *Store) PastSessions(teacherID string) []models.PastSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PastSession
	for _, ps := range s.pastSessions {
		if ps.TeacherID == teacherID {
			out = append(out, *ps)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	return out
}

func (s *Store) activeQuestionLocked() (*models.Question, bool) {
	for _, q := range s.questions {
		if q.IsActive {
			return q, true
		}
	}
	return nil, false
}

func (s *Store) onlineStudentsLocked() []models.Student {
	out := make([]models.Student, 0, len(s.students))
	for _, st := range s.students {
		if st.IsOnline {
			out = append(out, *st)
		}
	}
	sortStudents(out)
	return out
}

func (s *Store) responsesByQuestionLocked(questionID string) []models.Response {
	var out []models.Response
	for _, r := range s.responses {
		if r.QuestionID == questionID {
			out = append(out, *r)
		}
	}
	return out
}

func copyQuestion(q *models.Question) models.Question {
	out := *q
	out.Options = append([]string(nil), q.Options...)
	return out
}

func sortStudents(students []models.Student) {
	sort.Slice(students, func(i, j int) bool {
		if students[i].JoinedAt.Equal(students[j].JoinedAt) {
			return students[i].ID < students[j].ID
		}
		return students[i].JoinedAt.Before(students[j].JoinedAt)
	})
}
