package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"funnelpulse/api/models"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events []models.AnalyticsEvent
	err    error
}

func (f *fakeEventStore) InsertEvent(_ context.Context, event models.AnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventStore) byType(t models.EventType) []models.AnalyticsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AnalyticsEvent
	for _, e := range f.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeSessionStore struct {
	mu        sync.Mutex
	created   []models.SessionRecord
	pings     int
	createErr error
	pingErr   error
}

func (f *fakeSessionStore) CreateSession(_ context.Context, rec models.SessionRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, rec)
	return int64(len(f.created)), nil
}

func (f *fakeSessionStore) TouchPing(_ context.Context, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return f.pingErr
	}
	f.pings++
	return nil
}

func (f *fakeSessionStore) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

type fakeResolver struct {
	geo models.Geolocation
}

func (f *fakeResolver) Resolve(_ context.Context, _, _ string) models.Geolocation {
	return f.geo
}

func testGeo() models.Geolocation {
	return models.Geolocation{
		IP:          "203.0.113.9",
		CountryCode: "BR",
		CountryName: "Brazil",
		City:        "São Paulo",
		Region:      "São Paulo",
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeEventStore, *fakeSessionStore) {
	t.Helper()
	events := &fakeEventStore{}
	sessions := &fakeSessionStore{}
	m := NewManager(events, sessions, &fakeResolver{geo: testGeo()},
		WithPingInterval(time.Hour))
	return m, events, sessions
}

func TestEnterSessionEmitsPageEnter(t *testing.T) {
	m, events, sessions := newTestManager(t)
	defer m.Close()

	id := m.EnterSession(context.Background(), "203.0.113.9", "en-US", "/", "https://example.com")
	if id == "" {
		t.Fatal("expected a session id")
	}

	enters := events.byType(models.EventPageEnter)
	if len(enters) != 1 {
		t.Fatalf("expected 1 page_enter event, got %d", len(enters))
	}
	e := enters[0]
	if e.SessionID != id {
		t.Errorf("page_enter session id = %q, want %q", e.SessionID, id)
	}
	if e.CountryName != "Brazil" || e.CountryCode != "BR" {
		t.Errorf("page_enter geolocation = %s/%s, want Brazil/BR", e.CountryName, e.CountryCode)
	}
	if e.EventData["country"] != "Brazil" {
		t.Errorf("event data country = %v, want Brazil", e.EventData["country"])
	}

	sessions.mu.Lock()
	created := len(sessions.created)
	sessions.mu.Unlock()
	if created != 1 {
		t.Fatalf("expected 1 session row, got %d", created)
	}
}

func TestEnterSessionSurvivesSessionRowFailure(t *testing.T) {
	events := &fakeEventStore{}
	sessions := &fakeSessionStore{createErr: errors.New("db down")}
	m := NewManager(events, sessions, &fakeResolver{geo: testGeo()},
		WithPingInterval(time.Hour))
	defer m.Close()

	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")
	if id == "" {
		t.Fatal("expected a session id even when the session row write fails")
	}
	if got := len(events.byType(models.EventPageEnter)); got != 1 {
		t.Fatalf("expected page_enter to be emitted anyway, got %d", got)
	}
}

func TestTrackVideoPlayEmitsOnce(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	for i := 0; i < 5; i++ {
		m.TrackVideoPlay(id)
	}
	m.Close()

	if got := len(events.byType(models.EventVideoPlay)); got != 1 {
		t.Fatalf("expected exactly 1 video_play event, got %d", got)
	}
}

func TestLeadMilestoneFiresExactlyOnce(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	for _, ct := range []float64{100, 200, 464, 465, 465, 600} {
		m.TrackVideoProgress(id, ct, 3000)
	}
	m.Close()

	var leads []models.AnalyticsEvent
	for _, e := range events.byType(models.EventVideoProgress) {
		if e.EventData["milestone"] == "lead_reached" {
			leads = append(leads, e)
		}
	}
	if len(leads) != 1 {
		t.Fatalf("expected exactly 1 lead_reached event, got %d", len(leads))
	}
	if got := leads[0].EventData["time_reached"]; got != float64(465) {
		t.Errorf("lead_reached time_reached = %v, want 465", got)
	}
}

func TestPitchMilestoneStickyAcrossRegression(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	for _, ct := range []float64{2155, 2000, 2155, 2400} {
		m.TrackVideoProgress(id, ct, 3000)
	}
	m.Close()

	if got := len(events.byType(models.EventPitchReached)); got != 1 {
		t.Fatalf("expected exactly 1 pitch_reached event, got %d", got)
	}
}

func TestProgressBucketsFireOncePerSession(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	// 25% of 1000s is 250s; repeat samples in the same window.
	for _, ct := range []float64{250, 260, 270, 500, 510, 750, 760} {
		m.TrackVideoProgress(id, ct, 1000)
	}
	m.Close()

	buckets := make(map[interface{}]int)
	for _, e := range events.byType(models.EventVideoProgress) {
		if p, ok := e.EventData["progress"]; ok {
			buckets[p]++
		}
	}
	for _, want := range []int{25, 50, 75} {
		if buckets[want] != 1 {
			t.Errorf("progress bucket %v fired %d times, want 1", want, buckets[want])
		}
	}
}

func TestVideoProgressIgnoresBadDuration(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	m.TrackVideoProgress(id, 500, 0)
	m.TrackVideoProgress(id, 500, -1)
	m.Close()

	if got := len(events.byType(models.EventVideoProgress)); got != 0 {
		t.Fatalf("expected no video_progress events for bad durations, got %d", got)
	}
}

func TestTrackOfferClick(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	m.TrackOfferClick(id, "3-bottle")
	m.Close()

	clicks := events.byType(models.EventOfferClick)
	if len(clicks) != 1 {
		t.Fatalf("expected exactly 1 offer_click event, got %d", len(clicks))
	}
	if got := clicks[0].EventData["offer_type"]; got != "3-bottle" {
		t.Errorf("offer_type = %v, want 3-bottle", got)
	}
}

func TestEventCarriesGeolocationSuperset(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	m.TrackOfferClick(id, "6-bottle")
	m.Close()

	e := events.byType(models.EventOfferClick)[0]
	if e.EventData["offer_type"] != "6-bottle" {
		t.Error("caller-supplied event data was dropped")
	}
	if e.IP == "" || e.CountryCode == "" || e.CountryName == "" || e.City == "" || e.Region == "" {
		t.Errorf("geolocation columns incomplete: %+v", e)
	}
}

func TestExitSessionEmitsPageExitOnce(t *testing.T) {
	m, events, _ := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	m.ExitSession(id)
	m.ExitSession(id)
	m.Close()

	exits := events.byType(models.EventPageExit)
	if len(exits) != 1 {
		t.Fatalf("expected exactly 1 page_exit event, got %d", len(exits))
	}
	if _, ok := exits[0].EventData["time_on_page_ms"]; !ok {
		t.Error("page_exit missing time_on_page_ms")
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("expected no active sessions after exit, got %d", m.ActiveSessions())
	}
}

func TestUnknownSessionIsNoOp(t *testing.T) {
	m, events, _ := newTestManager(t)
	defer m.Close()

	m.TrackVideoPlay("missing")
	m.TrackVideoProgress("missing", 500, 3000)
	m.TrackOfferClick("missing", "1-bottle")
	m.ExitSession("missing")

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) != 0 {
		t.Fatalf("expected no events for an unknown session, got %d", len(events.events))
	}
}

func TestVisibilityHiddenEmitsExitSnapshot(t *testing.T) {
	m, events, sessions := newTestManager(t)
	id := m.EnterSession(context.Background(), "203.0.113.9", "", "", "")

	m.SetVisibility(id, true)
	// Session stays alive and can resume pinging.
	m.SetVisibility(id, false)
	m.Close()

	if got := len(events.byType(models.EventPageExit)); got != 1 {
		t.Fatalf("expected 1 page_exit snapshot on hide, got %d", got)
	}
	if m.ActiveSessions() != 0 {
		// Close reaps everything; the point is the session survived the hide.
		t.Errorf("expected sessions cleared by Close, got %d", m.ActiveSessions())
	}
	// The resume path fires an immediate ping.
	if sessions.pingCount() == 0 {
		t.Error("expected an immediate ping when the page became visible again")
	}
}
