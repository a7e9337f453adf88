package session

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// SeedDemo stores a fabricated sealed session for the teacher. Diagnostic
// helper only: it touches no live poll state and cannot fail.
func (m *Manager) SeedDemo(teacherID string) models.PastSession {
	now := time.Now()
	demo := func(text string, options []string, correct int, picks map[string]int) models.QuestionSnapshot {
		qid := uuid.NewString()
		votes := make([]int, len(options))
		summaries := make([]models.ResponseSummary, 0, len(picks))
		for _, n := range []string{"Demo Amy", "Demo Bo", "Demo Cleo", "Demo Dev"} {
			opt, ok := picks[n]
			if !ok {
				continue
			}
			votes[opt]++
			summaries = append(summaries, models.ResponseSummary{StudentName: n, SelectedOption: opt})
		}
		return models.QuestionSnapshot{
			ID:            qid,
			Text:          text,
			Options:       options,
			CorrectAnswer: correct,
			TimeLimit:     60,
			Results: models.PollResults{
				QuestionID:   qid,
				QuestionText: text,
				Options:      options,
				Votes:        votes,
				TotalVotes:   len(summaries),
				Responses:    summaries,
			},
		}
	}

	ps := models.PastSession{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Title:     "Sample Session",
		StartedAt: now.Add(-10 * time.Minute),
		EndedAt:   now,
		Questions: []models.QuestionSnapshot{
			demo("Which planet is known as the Red Planet?",
				[]string{"Venus", "Mars", "Jupiter", "Saturn"}, 1,
				map[string]int{"Demo Amy": 1, "Demo Bo": 1, "Demo Cleo": 0, "Demo Dev": 1}),
			demo("What is 7 x 8?",
				[]string{"54", "56", "58"}, 1,
				map[string]int{"Demo Amy": 1, "Demo Bo": 1, "Demo Cleo": 1, "Demo Dev": 1}),
		},
	}
	m.store.AddPastSession(ps)
	m.logger.Info("demo session seeded", zap.String("teacher_id", teacherID), zap.String("session_id", ps.ID))
	return ps
}
