// Package session tracks each teacher's in-flight question list and seals it
// into immutable past-session records.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/store"
)

// ArchiveSink receives sealed sessions for durable archival. May be nil.
type ArchiveSink interface {
	Save(ctx context.Context, ps models.PastSession) error
}

type inflight struct {
	startedAt   time.Time
	questionIDs []string
}

// Manager owns the per-teacher in-flight accumulators. At most one unsealed
// session exists per teacher.
type Manager struct {
	mu       sync.Mutex
	store    *store.Store
	archive  ArchiveSink
	logger   *zap.Logger
	inflight map[string]*inflight // teacherID -> accumulator
}

// NewManager creates a session manager. archive may be nil.
func NewManager(st *store.Store, archive ArchiveSink, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		archive:  archive,
		logger:   logger,
		inflight: make(map[string]*inflight),
	}
}

// Start begins a fresh in-flight session, discarding any unsealed one.
func (m *Manager) Start(teacherID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.inflight[teacherID]; ok && len(prior.questionIDs) > 0 {
		m.logger.Info("discarding unsealed session",
			zap.String("teacher_id", teacherID),
			zap.Int("questions", len(prior.questionIDs)))
	}
	m.inflight[teacherID] = &inflight{startedAt: time.Now()}
}

// RecordQuestion appends a question to the teacher's in-flight list. Without
// a session in flight this is a logged no-op.
func (m *Manager) RecordQuestion(teacherID, questionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.inflight[teacherID]
	if !ok {
		m.logger.Warn("question recorded without a session in flight",
			zap.String("teacher_id", teacherID),
			zap.String("question_id", questionID))
		return
	}
	s.questionIDs = append(s.questionIDs, questionID)
}

// Seal snapshots the in-flight question list into an immutable PastSession,
// freezing each question's results as of now, and clears the accumulator.
// Returns nil when there is no session or no questions to seal.
func (m *Manager) Seal(teacherID, title string) *models.PastSession {
	m.mu.Lock()
	s, ok := m.inflight[teacherID]
	if ok {
		delete(m.inflight, teacherID)
	}
	m.mu.Unlock()

	if !ok || len(s.questionIDs) == 0 {
		m.logger.Info("nothing to seal", zap.String("teacher_id", teacherID))
		return nil
	}

	snapshots := make([]models.QuestionSnapshot, 0, len(s.questionIDs))
	for _, qid := range s.questionIDs {
		q, found := m.store.GetQuestion(qid)
		if !found {
			continue
		}
		results, _ := m.store.PollResults(qid)
		snapshots = append(snapshots, models.QuestionSnapshot{
			ID:            q.ID,
			Text:          q.Text,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.CorrectAnswer,
			TimeLimit:     q.TimeLimit,
			Results:       results,
		})
	}

	ps := models.PastSession{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Title:     title,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		Questions: snapshots,
	}
	m.store.AddPastSession(ps)

	if m.archive != nil {
		// Write-behind: in-memory history stays authoritative on failure.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.archive.Save(ctx, ps); err != nil {
				m.logger.Warn("archive save failed",
					zap.String("session_id", ps.ID), zap.Error(err))
			}
		}()
	}

	m.logger.Info("session sealed",
		zap.String("teacher_id", teacherID),
		zap.String("session_id", ps.ID),
		zap.Int("questions", len(snapshots)))
	return &ps
}

// PastSessions returns the teacher's sealed sessions, most recent first.
func (m *Manager) PastSessions(teacherID string) []models.PastSession {
	return m.store.PastSessions(teacherID)
}

// HasInflight reports whether the teacher has an unsealed session.
func (m *Manager) HasInflight(teacherID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[teacherID]
	return ok
}
