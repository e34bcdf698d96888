package models

import "time"

// Geolocation is the resolved location/network descriptor for a session.
// Unknown values use the sentinels "Unknown"/"XX"; fields are never empty.
type Geolocation struct {
	IP          string `json:"ip"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
}

// UnknownGeolocation is the terminal fallback descriptor.
func UnknownGeolocation() Geolocation {
	return Geolocation{
		IP:          "Unknown",
		CountryCode: "XX",
		CountryName: "Unknown",
		City:        "Unknown",
		Region:      "Unknown",
	}
}

// SessionRecord mirrors one row of the Postgres sessions table. The
// liveness pinger updates LastPing every 30 seconds while the visitor's
// page is visible; the dashboard counts rows with a fresh LastPing as
// live users.
type SessionRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	EnteredAt   time.Time `json:"entered_at"`
	LastPing    time.Time `json:"last_ping"`
	IP          string    `json:"ip"`
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name"`
	City        string    `json:"city"`
	Region      string    `json:"region"`
}
