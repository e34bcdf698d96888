package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"funnelpulse/api/models"
	"funnelpulse/api/tracker"
)

// TrackHandlers exposes the public tracking endpoints the funnel pages
// call. Every endpoint is fire-and-forget from the page's point of view:
// it answers as soon as the request is handed to the tracker, and a
// tracking failure never turns into an error the page would see.
type TrackHandlers struct {
	Tracker *tracker.Manager
}

func NewTrackHandlers(t *tracker.Manager) *TrackHandlers {
	return &TrackHandlers{Tracker: t}
}

// Enter begins a session and hands the page its session id.
func (h *TrackHandlers) Enter(c *gin.Context) {
	var req models.EnterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sessionID := h.Tracker.EnterSession(
		c.Request.Context(),
		c.ClientIP(),
		c.GetHeader("Accept-Language"),
		req.PagePath,
		req.Referrer,
	)

	c.JSON(http.StatusOK, models.EnterResponse{SessionID: sessionID})
}

func (h *TrackHandlers) VideoPlay(c *gin.Context) {
	var req models.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	h.Tracker.TrackVideoPlay(req.SessionID)
	c.Status(http.StatusAccepted)
}

func (h *TrackHandlers) VideoProgress(c *gin.Context) {
	var req models.VideoProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	h.Tracker.TrackVideoProgress(req.SessionID, req.CurrentTime, req.Duration)
	c.Status(http.StatusAccepted)
}

func (h *TrackHandlers) OfferClick(c *gin.Context) {
	var req models.OfferClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and offer_type are required"})
		return
	}

	h.Tracker.TrackOfferClick(req.SessionID, req.OfferType)
	c.Status(http.StatusAccepted)
}

func (h *TrackHandlers) Visibility(c *gin.Context) {
	var req models.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	h.Tracker.SetVisibility(req.SessionID, req.Hidden)
	c.Status(http.StatusAccepted)
}

// Exit ends the session. Pages send this as a beacon on unload, so the
// body may arrive even after the tab is gone.
func (h *TrackHandlers) Exit(c *gin.Context) {
	var req models.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	h.Tracker.ExitSession(req.SessionID)
	c.Status(http.StatusAccepted)
}
