// Package tracker implements the analytics core of the VSL funnel:
// session lifecycle, fire-and-forget event emission, playback milestone
// gating and liveness pings. Nothing in this package ever surfaces an
// error to its callers; analytics is strictly best-effort and must never
// affect the visitor-facing flow.
package tracker

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"funnelpulse/api/models"
)

// EventStore persists funnel events (ClickHouse in production).
type EventStore interface {
	InsertEvent(ctx context.Context, event models.AnalyticsEvent) error
}

// SessionStore owns the mutable session rows (Postgres in production).
type SessionStore interface {
	CreateSession(ctx context.Context, rec models.SessionRecord) (int64, error)
	TouchPing(ctx context.Context, recordID int64) error
}

// GeoResolver resolves a visitor IP to a complete descriptor.
type GeoResolver interface {
	Resolve(ctx context.Context, ip, acceptLanguage string) models.Geolocation
}

const (
	defaultPingInterval = 30 * time.Second
	defaultIdleTimeout  = 30 * time.Minute
	janitorInterval     = time.Minute
	emitTimeout         = 10 * time.Second
)

// Manager tracks all active sessions for this API instance.
type Manager struct {
	events       EventStore
	sessions     SessionStore
	geo          GeoResolver
	pingInterval time.Duration
	idleTimeout  time.Duration

	mu     sync.RWMutex
	active map[string]*session

	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

type Option func(*Manager)

func WithPingInterval(d time.Duration) Option {
	return func(m *Manager) { m.pingInterval = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

func NewManager(events EventStore, sessions SessionStore, geo GeoResolver, opts ...Option) *Manager {
	m := &Manager{
		events:       events,
		sessions:     sessions,
		geo:          geo,
		pingInterval: defaultPingInterval,
		idleTimeout:  defaultIdleTimeout,
		active:       make(map[string]*session),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.janitor()

	return m
}

// EnterSession starts a new visit: generates the session id, resolves
// geolocation (once; later events reuse it), writes the Postgres session
// row, starts the liveness pinger and emits page_enter. page_enter is
// always emitted before any other event of the session because no other
// endpoint can see the session id until this returns.
func (m *Manager) EnterSession(ctx context.Context, ip, acceptLanguage, pagePath, referrer string) string {
	id := uuid.New().String()
	now := time.Now().UTC()
	geo := m.geo.Resolve(ctx, ip, acceptLanguage)

	s := newSession(id, geo, now)

	recordID, err := m.sessions.CreateSession(ctx, models.SessionRecord{
		SessionID:   id,
		EnteredAt:   now,
		LastPing:    now,
		IP:          geo.IP,
		CountryCode: geo.CountryCode,
		CountryName: geo.CountryName,
		City:        geo.City,
		Region:      geo.Region,
	})
	if err != nil {
		// The visit still gets tracked; only liveness is lost.
		log.Printf("tracker: failed to create session row for %s: %v", id, err)
	} else {
		s.recordID = recordID
		s.hasRecord = true
		s.pinger = NewPinger(m.sessions, recordID, id, m.pingInterval)
		s.pinger.Start()
	}

	m.mu.Lock()
	m.active[id] = s
	m.mu.Unlock()

	data := map[string]interface{}{
		"city":   geo.City,
		"region": geo.Region,
	}
	if pagePath != "" {
		data["page_path"] = pagePath
	}
	if referrer != "" {
		data["referrer"] = referrer
	}
	m.emitSync(s, models.EventPageEnter, data)

	return id
}

// TrackVideoPlay emits video_play at most once per session.
func (m *Manager) TrackVideoPlay(sessionID string) {
	s := m.lookup(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(time.Now().UTC())

	if s.playedVideo {
		return
	}
	s.playedVideo = true
	m.emit(s, models.EventVideoPlay, nil)
}

// TrackVideoProgress evaluates the milestone rules for one playback
// sample. Samples with a zero or NaN duration are ignored (player not
// ready yet). Regressions in currentTime are tolerated: the lead and
// pitch flags are sticky, and each percentage bucket fires at most once
// per session.
func (m *Manager) TrackVideoProgress(sessionID string, currentTime, duration float64) {
	if duration <= 0 || math.IsNaN(duration) || math.IsNaN(currentTime) {
		return
	}

	s := m.lookup(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(time.Now().UTC())

	if currentTime >= leadOffsetSeconds && !s.leadReached {
		s.leadReached = true
		m.emit(s, models.EventVideoProgress, map[string]interface{}{
			"milestone":    "lead_reached",
			"time_reached": currentTime,
			"current_time": currentTime,
		})
	}

	if currentTime >= pitchOffsetSeconds && !s.pitchReached {
		s.pitchReached = true
		m.emit(s, models.EventPitchReached, map[string]interface{}{
			"time_reached": currentTime,
			"current_time": currentTime,
		})
	}

	if bucket := progressBucket(currentTime, duration); bucket != 0 && !s.progressSent[bucket] {
		s.progressSent[bucket] = true
		m.emit(s, models.EventVideoProgress, map[string]interface{}{
			"progress":     bucket,
			"current_time": currentTime,
		})
	}
}

// TrackOfferClick records a click on one of the purchase offers.
func (m *Manager) TrackOfferClick(sessionID, offerType string) {
	s := m.lookup(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(time.Now().UTC())

	m.emit(s, models.EventOfferClick, map[string]interface{}{
		"offer_type": offerType,
	})
}

// SetVisibility reacts to the page's visibility signal. Hidden stops the
// pinger and emits a page_exit snapshot; visible restarts the pinger
// with an immediate ping so the live counter recovers right away.
func (m *Manager) SetVisibility(sessionID string, hidden bool) {
	s := m.lookup(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.touch(now)

	if hidden {
		if s.pinger != nil {
			s.pinger.Stop()
		}
		m.emit(s, models.EventPageExit, map[string]interface{}{
			"time_on_page_ms": now.Sub(s.enteredAt).Milliseconds(),
		})
		return
	}

	if s.pinger != nil && s.hasRecord {
		s.pinger.Start()
		s.pinger.PingNow()
	}
}

// ExitSession ends the visit: stops the pinger, emits the final
// page_exit and discards the in-memory state. Calling it twice is a
// no-op.
func (m *Manager) ExitSession(sessionID string) {
	m.mu.Lock()
	s, ok := m.active[sessionID]
	if ok {
		delete(m.active, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited {
		return
	}
	s.exited = true

	if s.pinger != nil {
		s.pinger.Stop()
	}
	m.emit(s, models.EventPageExit, map[string]interface{}{
		"time_on_page_ms": time.Now().UTC().Sub(s.enteredAt).Milliseconds(),
	})
}

// ActiveSessions reports how many sessions this instance holds in
// memory.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Close stops the janitor and every pinger, then waits for in-flight
// event writes to drain.
func (m *Manager) Close() {
	m.closed.Do(func() {
		close(m.done)
	})

	m.mu.Lock()
	for id, s := range m.active {
		if s.pinger != nil {
			s.pinger.Stop()
		}
		delete(m.active, id)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) lookup(sessionID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// emit persists one event asynchronously. Callers never learn whether
// the write succeeded; failures are logged and the event is dropped.
func (m *Manager) emit(s *session, eventType models.EventType, data map[string]interface{}) {
	event := m.buildEvent(s, eventType, data)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.write(event)
	}()
}

// emitSync persists one event before returning, still swallowing
// failures. Used for page_enter so it lands before any later event of
// the same session.
func (m *Manager) emitSync(s *session, eventType models.EventType, data map[string]interface{}) {
	m.write(m.buildEvent(s, eventType, data))
}

func (m *Manager) buildEvent(s *session, eventType models.EventType, data map[string]interface{}) models.AnalyticsEvent {
	now := time.Now().UTC()

	// country rides along inside event_data for the dashboard's older
	// read paths, alongside the dedicated columns.
	merged := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["country"] = s.geo.CountryName

	return models.AnalyticsEvent{
		EventID:     uuid.New().String(),
		SessionID:   s.id,
		EventType:   eventType,
		EventData:   merged,
		Timestamp:   now,
		IP:          s.geo.IP,
		CountryCode: s.geo.CountryCode,
		CountryName: s.geo.CountryName,
		City:        s.geo.City,
		Region:      s.geo.Region,
		LastPing:    now,
	}
}

func (m *Manager) write(event models.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := m.events.InsertEvent(ctx, event); err != nil {
		log.Printf("tracker: failed to record %s for session %s: %v", event.EventType, event.SessionID, err)
	}
}

// janitor closes sessions that have gone quiet: a browser that navigated
// away without firing the exit beacon would otherwise leak state and a
// running pinger forever.
func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().UTC().Add(-m.idleTimeout)

	m.mu.RLock()
	var stale []string
	for id, s := range m.active {
		s.mu.Lock()
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, id := range stale {
		log.Printf("tracker: reaping idle session %s", id)
		m.ExitSession(id)
	}
}
