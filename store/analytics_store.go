package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"funnelpulse/api/database"
	"funnelpulse/api/models"
	"funnelpulse/api/utils"
)

// AnalyticsStore persists funnel events to the append-only ClickHouse
// table and answers the dashboard's aggregation queries over it.
type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

func (s *AnalyticsStore) InsertEvent(ctx context.Context, event models.AnalyticsEvent) error {
	return s.InsertEvents(ctx, []models.AnalyticsEvent{event})
}

func (s *AnalyticsStore) InsertEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Column names and order must match the funnel_events table schema.
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO funnel_events (
			event_id, session_id, event_type, event_data, timestamp,
			ip, country_code, country_name, city, region, last_ping
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		eventDataJSON := "null"
		if event.EventData != nil {
			data, err := json.Marshal(event.EventData)
			if err != nil {
				log.Printf("Error marshalling event data (EventID: %s): %v", event.EventID, err)
			} else {
				eventDataJSON = string(data)
			}
		}

		err := batch.Append(
			event.EventID,
			event.SessionID,
			string(event.EventType),
			eventDataJSON,
			event.Timestamp,
			event.IP,
			event.CountryCode,
			event.CountryName,
			event.City,
			event.Region,
			event.LastPing,
		)
		if err != nil {
			log.Printf("Error appending event to batch (EventID: %s): %v", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

// GetFunnelSummary computes the dashboard's top-line funnel view: how
// many sessions entered, played the video, reached the lead and pitch
// marks, and clicked each offer, plus average dwell time.
func (s *AnalyticsStore) GetFunnelSummary(ctx context.Context, start, end time.Time) (*models.FunnelSummary, error) {
	summary := &models.FunnelSummary{
		OfferClicks:     make(map[string]uint64),
		OfferClickRates: make(map[string]float64),
	}

	query := `
		SELECT
			uniqExactIf(session_id, event_type = 'page_enter') AS sessions,
			uniqExactIf(session_id, event_type = 'video_play') AS plays,
			uniqExactIf(session_id, event_type = 'video_progress'
				AND JSONExtractString(event_data, 'milestone') = 'lead_reached') AS leads,
			uniqExactIf(session_id, event_type = 'pitch_reached') AS pitches,
			countIf(event_type = 'offer_click') AS offer_clicks,
			avgIf(JSONExtractFloat(event_data, 'time_on_page_ms'), event_type = 'page_exit') AS avg_time
		FROM funnel_events
		WHERE timestamp >= ? AND timestamp <= ?
	`

	var avgTime float64
	err := s.DB.Conn.QueryRow(ctx, query, start, end).Scan(
		&summary.TotalSessions,
		&summary.VideoPlays,
		&summary.LeadsReached,
		&summary.PitchesReached,
		&summary.TotalOfferClicks,
		&avgTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel summary: %w", err)
	}

	// avgIf returns NaN over an empty set, which JSON cannot carry.
	if !math.IsNaN(avgTime) {
		summary.AvgTimeOnPageMs = avgTime
	}

	if summary.TotalSessions > 0 {
		total := float64(summary.TotalSessions)
		summary.VideoPlayRate = float64(summary.VideoPlays) / total * 100
		summary.LeadReachRate = float64(summary.LeadsReached) / total * 100
		summary.PitchReachRate = float64(summary.PitchesReached) / total * 100
	}

	offerQuery := `
		SELECT JSONExtractString(event_data, 'offer_type') AS offer, count() AS clicks
		FROM funnel_events
		WHERE event_type = 'offer_click' AND timestamp >= ? AND timestamp <= ?
		GROUP BY offer
	`
	rows, err := s.DB.Conn.Query(ctx, offerQuery, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query offer clicks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var offer string
		var clicks uint64
		if err := rows.Scan(&offer, &clicks); err != nil {
			log.Printf("Error scanning offer click row: %v", err)
			continue
		}
		summary.OfferClicks[offer] = clicks
		if summary.TotalSessions > 0 {
			summary.OfferClickRates[offer] = float64(clicks) / float64(summary.TotalSessions) * 100
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during offer click query: %w", err)
	}

	return summary, nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventTypeFilter string) ([]models.EventTypeCountByTime, error) {
	var query string
	var args []interface{}
	args = append(args, start, end)

	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, count() as total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByType := eventTypeFilter != ""

	if isFilteringByType {
		selectCols += ", event_type"
		groupByCols += ", event_type"
		whereClause += " AND event_type = ?"
		args = append(args, eventTypeFilter)
		orderByCols += ", event_type ASC"
	}

	query = fmt.Sprintf(`
		SELECT %s
		FROM funnel_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.EventTypeCountByTime
	for rows.Next() {
		var (
			timeBucket    time.Time
			count         uint64
			eventTypeDB   string
			currentResult models.EventTypeCountByTime
		)

		if isFilteringByType {
			if err := rows.Scan(&timeBucket, &count, &eventTypeDB); err != nil {
				log.Printf("Error scanning row for event counts over time (with type filter): %v", err)
				continue
			}
			currentResult.EventType = &eventTypeDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for event counts over time (no type filter): %v", err)
				continue
			}
		}

		currentResult.Time = timeBucket
		currentResult.Count = count
		results = append(results, currentResult)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetTopCountries(ctx context.Context, start, end time.Time, limit uint64) ([]models.CountryCount, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT country_name, any(country_code) AS code, uniqExact(session_id) AS sessions
		FROM funnel_events
		WHERE event_type = 'page_enter' AND timestamp >= ? AND timestamp <= ?
		GROUP BY country_name
		ORDER BY sessions DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top countries: %w", err)
	}
	defer rows.Close()

	var results []models.CountryCount
	for rows.Next() {
		var c models.CountryCount
		if err := rows.Scan(&c.CountryName, &c.CountryCode, &c.Count); err != nil {
			log.Printf("Error scanning row for top countries: %v", err)
			continue
		}
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top countries: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetTopCities(ctx context.Context, start, end time.Time, limit uint64) ([]models.CityCount, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT city, any(country_name) AS country, uniqExact(session_id) AS sessions
		FROM funnel_events
		WHERE event_type = 'page_enter' AND city != 'Unknown'
			AND timestamp >= ? AND timestamp <= ?
		GROUP BY city
		ORDER BY sessions DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top cities: %w", err)
	}
	defer rows.Close()

	var results []models.CityCount
	for rows.Next() {
		var c models.CityCount
		if err := rows.Scan(&c.City, &c.CountryName, &c.Count); err != nil {
			log.Printf("Error scanning row for top cities: %v", err)
			continue
		}
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top cities: %w", err)
	}

	return results, nil
}
