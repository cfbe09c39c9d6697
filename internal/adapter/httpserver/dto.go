package httpserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// naiveTimeLayout is the wire format for schedule timestamps: naive UTC with
// no zone suffix, matching the store's TIMESTAMP columns.
const naiveTimeLayout = "2006-01-02T15:04:05"

// NaiveTime is a JSON timestamp codec for the admin API.
type NaiveTime struct {
	time.Time
}

// UnmarshalJSON parses a naive UTC timestamp.
func (n *NaiveTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	t, err := time.ParseInLocation(naiveTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return fmt.Errorf("time must match %s: %w", naiveTimeLayout, err)
	}
	n.Time = t
	return nil
}

// MarshalJSON renders the timestamp in the naive UTC layout.
func (n NaiveTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.UTC().Format(naiveTimeLayout))
}

type createJobRequest struct {
	Target  string          `json:"target" validate:"required"`
	Time    *NaiveTime      `json:"time"`
	Type    string          `json:"type" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type createJobResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type updateJobTimeRequest struct {
	Time *NaiveTime `json:"time" validate:"required"`
}
