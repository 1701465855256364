package liftmeta

import (
	"encoding/json"
	"time"
)

// SimMetaData describes one simulation run, logged at startup.
type SimMetaData struct {
	SoftwareVersion string    `json:"software_version"`
	SessionID       string    `json:"session_id"`
	NumCars         int       `json:"num_cars"`
	MaxFloor        int       `json:"max_floor"`
	StartedAt       time.Time `json:"started_at"`
}

func (simMetaData *SimMetaData) String() string {
	jsonData, err := json.Marshal(simMetaData)
	if err != nil {
		return "{}"
	}
	return string(jsonData)
}
