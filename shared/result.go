package shared

import (
	"github.com/google/uuid"
)

// BackfillResult represents the outcome of an ingestion run.
type BackfillResult struct {
	// Inserted is the number of candles written to the store.
	Inserted int `json:"inserted"`
	// Seen is the number of candles parsed from upstream responses.
	Seen int `json:"seen"`
	// Windows is the number of sub-window fetches completed.
	Windows int `json:"windows"`
}

// CycleResult represents the outcome of a decision cycle.
type CycleResult struct {
	ID       uuid.UUID         `json:"id"`
	Judgment *ForecastJudgment `json:"judgment"`
	Trade    *Trade            `json:"trade"`
}
