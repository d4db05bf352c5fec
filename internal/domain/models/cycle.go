package models

import "time"

// CycleReport is the consolidated result of one evaluation cycle.
// Note: no transport (json/http) concerns beyond tags.
type CycleReport struct {
	Timestamp time.Time                `json:"timestamp"`
	Duration  time.Duration            `json:"duration"`
	Assets    map[string]*AssetOutcome `json:"assets"`
}

// AssetOutcome holds what happened to one asset during a cycle.
type AssetOutcome struct {
	AssetID    string   `json:"asset_id"`
	Candidates int      `json:"candidates"`
	Approved   []Signal `json:"approved"`
	// Skipped maps a detector name to the reason it declined or failed.
	Skipped map[string]string `json:"skipped,omitempty"`
}

// Top returns the highest ranked approved signal, if any.
func (o *AssetOutcome) Top() (Signal, bool) {
	if o == nil || len(o.Approved) == 0 {
		return Signal{}, false
	}
	return o.Approved[0], true
}

// ApprovedCount counts approved signals across all assets.
func (r *CycleReport) ApprovedCount() int {
	n := 0
	for _, a := range r.Assets {
		n += len(a.Approved)
	}
	return n
}
