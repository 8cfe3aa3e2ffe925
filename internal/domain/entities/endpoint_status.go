package entities

import "time"

// EndpointStatus describes which prediction endpoint was found reachable.
// Checking stays true only until the first probe resolves.
type EndpointStatus struct {
	Connected bool      `json:"connected"`
	Endpoint  string    `json:"endpoint"`
	Checking  bool      `json:"checking"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
}

// PreferredEndpoint returns the endpoint to try first, or "" when the
// probe has not found one.
func (s EndpointStatus) PreferredEndpoint() string {
	if !s.Connected {
		return ""
	}
	return s.Endpoint
}
