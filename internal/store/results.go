package store

import (
	"sort"

	"github.com/classpulse/backend/internal/models"
)

// PollResults derives the tally for one question: a vote histogram over the
// option indexes, the total vote count, and the per-student votes in
// submission order. Out-of-range selections are ignored in the histogram but
// still counted in totalVotes. Always computed fresh from the tables.
func (s *Store) PollResults(questionID string) (models.PollResults, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[questionID]
	if !ok {
		return models.PollResults{}, false
	}
	responses := s.responsesByQuestionLocked(questionID)

	votes := make([]int, len(q.Options))
	summaries := make([]models.ResponseSummary, 0, len(responses))
	for _, r := range responses {
		if r.SelectedOption >= 0 && r.SelectedOption < len(votes) {
			votes[r.SelectedOption]++
		}
		summaries = append(summaries, models.ResponseSummary{
			StudentName:    r.StudentName,
			SelectedOption: r.SelectedOption,
		})
	}

	return models.PollResults{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		Options:      append([]string(nil), q.Options...),
		Votes:        votes,
		TotalVotes:   len(responses),
		Responses:    summaries,
	}, true
}

// AllPollResults derives results for every question ever asked, most recent
// question first.
func (s *Store) AllPollResults() []models.PollResults {
	s.mu.RLock()
	ids := make([]string, 0, len(s.questions))
	for id := range s.questions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.questions[ids[i]].CreatedAt.After(s.questions[ids[j]].CreatedAt)
	})
	s.mu.RUnlock()

	out := make([]models.PollResults, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.PollResults(id); ok {
			out = append(out, r)
		}
	}
	return out
}
