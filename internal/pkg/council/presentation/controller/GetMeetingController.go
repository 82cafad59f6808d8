package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/persistence/repository/adapter"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/persistence/repository/port"
)

// GetMeetingController serves read access to a stored meeting (one controller
// per endpoint). Audio blobs are excluded; clients fetch them per message.
type GetMeetingController struct {
	repo port.MeetingRepository
}

func NewGetMeetingController(pool *pgxpool.Pool) *GetMeetingController {
	return &GetMeetingController{repo: adapter.NewPgMeetingRepository(pool)}
}

func (h *GetMeetingController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("meetingId"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "meetingId must be a positive integer"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		meeting, err := h.repo.GetMeeting(ctx, id)
		if errors.Is(err, port.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":           meeting.ID,
			"date":         meeting.Date,
			"conversation": meeting.Conversation,
			"options":      meeting.Options,
			"audio":        meeting.AudioIDs,
			"summary":      meeting.Summary,
		})
	}
}
