package models

import "time"

// PublishedContentRecord is an analysis text that was accepted for publication.
type PublishedContentRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	AssetIDs  []string  `json:"asset_ids"`
}

// Decision is the outcome of a duplicate check. Rejection is a normal result.
type Decision struct {
	Accepted   bool      `json:"accepted"`
	Reason     string    `json:"reason,omitempty"`
	Similarity float64   `json:"similarity"`
	MatchedID  string    `json:"matched_id,omitempty"`
	MatchedAt  time.Time `json:"matched_at,omitempty"`
	// Record is set when Accepted is true and the text was appended to history.
	Record *PublishedContentRecord `json:"record,omitempty"`
}

// Reject reasons.
const (
	ReasonDuplicate = "near_duplicate"
	ReasonEmpty     = "empty_text"
)
