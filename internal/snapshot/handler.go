// Package snapshot exposes the read-only REST surface. It only reads store
// state; every mutation goes through the realtime orchestrator.
package snapshot

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/archive"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/store"
	"github.com/classpulse/backend/pkg/response"
)

// Handler serves point-in-time reads of poll state.
type Handler struct {
	store   *store.Store
	archive *archive.Repository // nil when no database is configured
	logger  *zap.Logger
}

// NewHandler creates a snapshot handler. archive may be nil.
func NewHandler(st *store.Store, arch *archive.Repository, logger *zap.Logger) *Handler {
	return &Handler{store: st, archive: arch, logger: logger}
}

// PollState returns the active question, online students, admission flag and
// current results.
func (h *Handler) PollState(c *gin.Context) {
	var (
		activeQuestion *models.Question
		activePoll     *models.Poll
		results        *models.PollResults
	)
	if q, ok := h.store.GetActiveQuestion(); ok {
		activeQuestion = &q
		if r, ok := h.store.PollResults(q.ID); ok {
			results = &r
		}
	}
	if p, ok := h.store.GetActivePoll(); ok {
		activePoll = &p
	}
	response.OK(c, gin.H{
		"activeQuestion": activeQuestion,
		"activePoll":     activePoll,
		"students":       h.store.OnlineStudents(),
		"canAskQuestion": h.store.CanAskNewQuestion(),
		"results":        results,
	})
}

// AllResults returns derived results for every question ever asked.
func (h *Handler) AllResults(c *gin.Context) {
	response.OK(c, gin.H{"results": h.store.AllPollResults()})
}

// Students returns the online student roster.
func (h *Handler) Students(c *gin.Context) {
	response.OK(c, gin.H{"students": h.store.OnlineStudents()})
}

// ArchivedSessions lists sessions persisted to the archive database. Without
// a configured archive the list is empty, never an error.
func (h *Handler) ArchivedSessions(c *gin.Context) {
	if h.archive == nil {
		response.OK(c, gin.H{"sessions": []models.PastSession{}})
		return
	}
	sessions, err := h.archive.List(c.Request.Context(), c.Query("teacherId"))
	if err != nil {
		h.logger.Warn("archive list failed", zap.Error(err))
		response.OK(c, gin.H{"sessions": []models.PastSession{}})
		return
	}
	response.OK(c, gin.H{"sessions": sessions})
}
