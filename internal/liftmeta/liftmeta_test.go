package liftmeta

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	startedAt, _ := time.Parse(time.RFC3339, "2025-03-01T12:00:00Z")
	metadata := SimMetaData{
		SoftwareVersion: "smj2acjkvv4h1zkwjz2ocsn2lkfrjmzf9qn4i2m3",
		SessionID:       "uwvvblrtct",
		NumCars:         4,
		MaxFloor:        20,
		StartedAt:       startedAt,
	}

	jsonString := "{\"software_version\":\"smj2acjkvv4h1zkwjz2ocsn2lkfrjmzf9qn4i2m3\",\"session_id\":\"uwvvblrtct\",\"num_cars\":4,\"max_floor\":20,\"started_at\":\"2025-03-01T12:00:00Z\"}"

	if metadata.String() != jsonString {
		t.Errorf("String() = %s, expected %s", metadata.String(), jsonString)
	}
}
