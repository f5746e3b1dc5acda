package premium

import (
	"encoding/json"
	"time"
)

// ActivateRequest is the body of POST /premium/activate.
type ActivateRequest struct {
	Months int `json:"months"`
}

// StatusResponse describes the caller's plan and objective usage.
type StatusResponse struct {
	Premium  bool           `json:"premium"`
	Expiry   *time.Time     `json:"expiry,omitempty"`
	DaysLeft int            `json:"days_left"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Quota    int            `json:"quota"`
}

// CanCreateResponse answers the quota predicate for one kind.
type CanCreateResponse struct {
	Kind      string `json:"kind"`
	CanCreate bool   `json:"can_create"`
}

// ObjectivesResponse lists one collection.
type ObjectivesResponse struct {
	Kind       string            `json:"kind"`
	Objectives []json.RawMessage `json:"objectives"`
	Count      int               `json:"count"`
}
