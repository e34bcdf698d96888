package models

import "time"

// EventType is the closed set of funnel events the tracker emits.
type EventType string

const (
	EventPageEnter     EventType = "page_enter"
	EventVideoPlay     EventType = "video_play"
	EventVideoProgress EventType = "video_progress"
	EventPitchReached  EventType = "pitch_reached"
	EventOfferClick    EventType = "offer_click"
	EventPageExit      EventType = "page_exit"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventPageEnter, EventVideoPlay, EventVideoProgress,
		EventPitchReached, EventOfferClick, EventPageExit:
		return true
	default:
		return false
	}
}

// AnalyticsEvent is one persisted fact about a session. Events are
// append-only; the session row in Postgres is the only record that ever
// gets updated after insert (its last_ping column).
type AnalyticsEvent struct {
	EventID     string                 `json:"eventId"`
	SessionID   string                 `json:"sessionId"`
	EventType   EventType              `json:"eventType"`
	EventData   map[string]interface{} `json:"eventData,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	IP          string                 `json:"ip"`
	CountryCode string                 `json:"countryCode"`
	CountryName string                 `json:"countryName"`
	City        string                 `json:"city"`
	Region      string                 `json:"region"`
	LastPing    time.Time              `json:"lastPing"`
}

type EventTypeCountByTime struct {
	Time      time.Time `json:"time"`
	EventType *string   `json:"eventType,omitempty"`
	Count     uint64    `json:"count"`
}

// FunnelSummary is the dashboard's top-line view of the VSL funnel.
type FunnelSummary struct {
	TotalSessions    uint64             `json:"totalSessions"`
	VideoPlays       uint64             `json:"videoPlays"`
	LeadsReached     uint64             `json:"leadsReached"`
	PitchesReached   uint64             `json:"pitchesReached"`
	VideoPlayRate    float64            `json:"videoPlayRate"`
	LeadReachRate    float64            `json:"leadReachRate"`
	PitchReachRate   float64            `json:"pitchReachRate"`
	TotalOfferClicks uint64             `json:"totalOfferClicks"`
	OfferClicks      map[string]uint64  `json:"offerClicks"`
	OfferClickRates  map[string]float64 `json:"offerClickRates"`
	AvgTimeOnPageMs  float64            `json:"avgTimeOnPageMs"`
}

type CountryCount struct {
	CountryName string `json:"countryName"`
	CountryCode string `json:"countryCode"`
	Count       uint64 `json:"count"`
}

type CityCount struct {
	City        string `json:"city"`
	CountryName string `json:"countryName"`
	Count       uint64 `json:"count"`
}
