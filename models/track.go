package models

// Request bodies for the public tracking endpoints. The frontend fires
// these and never waits on the result beyond the HTTP status.

type EnterRequest struct {
	PagePath string `json:"page_path"`
	Referrer string `json:"referrer"`
}

type EnterResponse struct {
	SessionID string `json:"session_id"`
}

type SessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type VideoProgressRequest struct {
	SessionID   string  `json:"session_id" binding:"required"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
}

type OfferClickRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	OfferType string `json:"offer_type" binding:"required"`
}

type VisibilityRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Hidden    bool   `json:"hidden"`
}
