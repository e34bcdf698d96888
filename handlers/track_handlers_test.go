package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"funnelpulse/api/models"
	"funnelpulse/api/tracker"
)

type memEventStore struct {
	mu     sync.Mutex
	events []models.AnalyticsEvent
}

func (s *memEventStore) InsertEvent(_ context.Context, event models.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memEventStore) byType(t models.EventType) []models.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AnalyticsEvent
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type memSessionStore struct {
	mu   sync.Mutex
	next int64
}

func (s *memSessionStore) CreateSession(_ context.Context, _ models.SessionRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next, nil
}

func (s *memSessionStore) TouchPing(_ context.Context, _ int64) error { return nil }

type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, _, _ string) models.Geolocation {
	return models.Geolocation{
		IP:          "203.0.113.1",
		CountryCode: "US",
		CountryName: "United States",
		City:        "Austin",
		Region:      "Texas",
	}
}

func newTrackRouter(t *testing.T) (*gin.Engine, *tracker.Manager, *memEventStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := &memEventStore{}
	manager := tracker.NewManager(events, &memSessionStore{}, staticResolver{},
		tracker.WithPingInterval(time.Hour))

	h := NewTrackHandlers(manager)
	r := gin.New()
	track := r.Group("/api/track")
	{
		track.POST("/enter", h.Enter)
		track.POST("/video-play", h.VideoPlay)
		track.POST("/video-progress", h.VideoProgress)
		track.POST("/offer-click", h.OfferClick)
		track.POST("/visibility", h.Visibility)
		track.POST("/exit", h.Exit)
	}
	return r, manager, events
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func enterSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := postJSON(t, r, "/api/track/enter", models.EnterRequest{PagePath: "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("enter returned %d: %s", w.Code, w.Body.String())
	}
	var resp models.EnterResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode enter response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("enter returned an empty session id")
	}
	return resp.SessionID
}

func TestEnterReturnsSessionID(t *testing.T) {
	r, manager, events := newTrackRouter(t)
	defer manager.Close()

	id := enterSession(t, r)

	enters := events.byType(models.EventPageEnter)
	if len(enters) != 1 || enters[0].SessionID != id {
		t.Fatalf("expected one page_enter for session %s, got %+v", id, enters)
	}
}

func TestOfferClickEndToEnd(t *testing.T) {
	r, manager, events := newTrackRouter(t)

	id := enterSession(t, r)
	w := postJSON(t, r, "/api/track/offer-click", models.OfferClickRequest{
		SessionID: id,
		OfferType: "3-bottle",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("offer-click returned %d", w.Code)
	}
	manager.Close()

	clicks := events.byType(models.EventOfferClick)
	if len(clicks) != 1 {
		t.Fatalf("expected exactly 1 offer_click event, got %d", len(clicks))
	}
	if got := clicks[0].EventData["offer_type"]; got != "3-bottle" {
		t.Errorf("offer_type = %v, want 3-bottle", got)
	}
	if clicks[0].CountryName != "United States" {
		t.Errorf("geolocation enrichment missing: %+v", clicks[0])
	}
}

func TestVideoProgressEndpointGatesMilestones(t *testing.T) {
	r, manager, events := newTrackRouter(t)

	id := enterSession(t, r)
	for _, ct := range []float64{464, 465, 466} {
		w := postJSON(t, r, "/api/track/video-progress", models.VideoProgressRequest{
			SessionID:   id,
			CurrentTime: ct,
			Duration:    3000,
		})
		if w.Code != http.StatusAccepted {
			t.Fatalf("video-progress returned %d", w.Code)
		}
	}
	manager.Close()

	var leads int
	for _, e := range events.byType(models.EventVideoProgress) {
		if e.EventData["milestone"] == "lead_reached" {
			leads++
		}
	}
	if leads != 1 {
		t.Fatalf("expected 1 lead_reached through the HTTP surface, got %d", leads)
	}
}

func TestTrackEndpointsRejectMissingSessionID(t *testing.T) {
	r, manager, _ := newTrackRouter(t)
	defer manager.Close()

	for _, path := range []string{
		"/api/track/video-play",
		"/api/track/video-progress",
		"/api/track/offer-click",
		"/api/track/visibility",
		"/api/track/exit",
	} {
		w := postJSON(t, r, path, map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s with empty body returned %d, want 400", path, w.Code)
		}
	}
}

func TestUnknownSessionStillAccepted(t *testing.T) {
	// Tracking is best-effort: a stale session id must not produce an
	// error the page would react to.
	r, manager, events := newTrackRouter(t)
	defer manager.Close()

	w := postJSON(t, r, "/api/track/video-play", models.SessionRequest{SessionID: "stale"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("stale session returned %d, want 202", w.Code)
	}
	if got := len(events.byType(models.EventVideoPlay)); got != 0 {
		t.Fatalf("expected no events for a stale session, got %d", got)
	}
}
