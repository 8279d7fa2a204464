package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"piano/internal/core"
)

// ProjectionJobMessage asks the worker to compound one goal's balance over a
// date range. It carries dates in wire format; the worker fetches the goal's
// current rate schedule from the database, so a schedule edit between publish
// and consume is picked up rather than replayed stale.
type ProjectionJobMessage struct {
	GoalID         string    `json:"goal_id"`
	PrincipalCents int64     `json:"principal_cents"`
	FromDate       string    `json:"from_date"`
	ToDate         string    `json:"to_date"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewProjectionJobMessage creates a projection job for the given goal and window.
func NewProjectionJobMessage(goalID string, principalCents int64, fromDate, toDate core.Date) *ProjectionJobMessage {
	return &ProjectionJobMessage{
		GoalID:         goalID,
		PrincipalCents: principalCents,
		FromDate:       fromDate.String(),
		ToDate:         toDate.String(),
		Timestamp:      time.Now(),
	}
}

// Window parses the message's date range back into calendar dates.
func (m *ProjectionJobMessage) Window() (core.Date, core.Date, error) {
	from, err := core.ParseDate(m.FromDate)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("parse from_date: %w", err)
	}
	to, err := core.ParseDate(m.ToDate)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("parse to_date: %w", err)
	}
	return from, to, nil
}

// ToJSON converts the message to JSON bytes
func (m *ProjectionJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func ProjectionJobMessageFromJSON(data []byte) (*ProjectionJobMessage, error) {
	var msg ProjectionJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
