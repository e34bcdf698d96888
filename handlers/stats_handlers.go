package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"funnelpulse/api/models"
)

// EventReader is the dashboard's read-only view over the event table.
type EventReader interface {
	GetFunnelSummary(ctx context.Context, start, end time.Time) (*models.FunnelSummary, error)
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.EventTypeCountByTime, error)
	GetTopCountries(ctx context.Context, start, end time.Time, limit uint64) ([]models.CountryCount, error)
	GetTopCities(ctx context.Context, start, end time.Time, limit uint64) ([]models.CityCount, error)
}

// LivenessReader answers live-viewer questions from session rows.
type LivenessReader interface {
	CountLiveSessions(ctx context.Context) (uint64, error)
	LiveCountryBreakdown(ctx context.Context) ([]models.CountryCount, error)
}

// StatsHandlers serves the admin dashboard's aggregation endpoints.
type StatsHandlers struct {
	Events   EventReader
	Sessions LivenessReader
}

func NewStatsHandlers(events EventReader, sessions LivenessReader) *StatsHandlers {
	return &StatsHandlers{Events: events, Sessions: sessions}
}

// parseTimeRange reads optional RFC3339 start/end query parameters,
// defaulting to the last 7 days.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, bool) {
	start := time.Now().UTC().Add(-7 * 24 * time.Hour)
	end := time.Now().UTC()

	if startParam := c.Query("start"); startParam != "" {
		parsed, err := time.Parse(time.RFC3339, startParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
		start = parsed
	}

	if endParam := c.Query("end"); endParam != "" {
		parsed, err := time.Parse(time.RFC3339, endParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"})
			return start, end, false
		}
		end = parsed
	}

	return start, end, true
}

func parseLimit(c *gin.Context) (uint64, bool) {
	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func (h *StatsHandlers) GetFunnelSummary(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	summary, err := h.Events.GetFunnelSummary(ctx, start, end)
	if err != nil {
		log.Printf("Error getting funnel summary: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve funnel statistics"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *StatsHandlers) GetLiveUsers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.Sessions.CountLiveSessions(ctx)
	if err != nil {
		log.Printf("Error counting live sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve live user count"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"liveUsers": count})
}

func (h *StatsHandlers) GetLiveBreakdown(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	breakdown, err := h.Sessions.LiveCountryBreakdown(ctx)
	if err != nil {
		log.Printf("Error getting live country breakdown: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve live breakdown"})
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return
	}

	eventTypeFilter := c.Query("eventType")

	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.GetEventCountsOverTime(ctx, interval, start, end, eventTypeFilter)
	if err != nil {
		log.Printf("Error getting event counts over time: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopCountries(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.GetTopCountries(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top countries: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top countries"})
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopCities(c *gin.Context) {
	start, end, ok := parseTimeRange(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Events.GetTopCities(ctx, start, end, limit)
	if err != nil {
		log.Printf("Error getting top cities: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top cities"})
		return
	}

	c.JSON(http.StatusOK, results)
}
