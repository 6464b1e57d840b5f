package model

import (
	"encoding/json"
	"time"
)

// Event is a single tracked analytics event. Metadata is always a JSON object.
type Event struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	Name      string          `json:"name"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DailyCount is the number of events recorded on one UTC calendar day.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}
