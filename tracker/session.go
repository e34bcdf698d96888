package tracker

import (
	"sync"
	"time"

	"funnelpulse/api/models"
)

// Video offsets that mark the lead and pitch moments of the VSL, in
// seconds of playback time.
const (
	leadOffsetSeconds  = 465  // 7:45
	pitchOffsetSeconds = 2155 // 35:55
)

// session is the per-visit state the tracker keeps in memory. All fields
// are guarded by mu: multiple request-handling goroutines can touch the
// same session concurrently.
type session struct {
	mu sync.Mutex

	id        string
	enteredAt time.Time
	lastSeen  time.Time
	geo       models.Geolocation

	// recordID targets the Postgres session row for liveness pings.
	// Set once after the first successful page_enter write.
	recordID  int64
	hasRecord bool

	// Milestone flags transition false->true exactly once per session
	// and are never reset, even if playback time regresses.
	playedVideo  bool
	leadReached  bool
	pitchReached bool
	progressSent map[int]bool

	exited bool
	pinger *Pinger
}

func newSession(id string, geo models.Geolocation, now time.Time) *session {
	return &session{
		id:           id,
		enteredAt:    now,
		lastSeen:     now,
		geo:          geo,
		progressSent: make(map[int]bool),
	}
}

func (s *session) touch(now time.Time) {
	s.lastSeen = now
}

// progressBucket returns 25, 50 or 75 for playback positions inside the
// corresponding quarter window, or 0 below the first milestone.
func progressBucket(currentTime, duration float64) int {
	switch {
	case currentTime >= duration*0.75:
		return 75
	case currentTime >= duration*0.50:
		return 50
	case currentTime >= duration*0.25:
		return 25
	default:
		return 0
	}
}
