package model

import (
	"encoding/json"
	"errors"
	"testing"
)

const validRow = `["3c6444", "DLH9LF  ", "Germany", 1700000000, 1700000005, 8.5622, 50.0379, 10363.2, false, 231.4, 87.5, -0.33, null, 10660.4, "1000", false, 0]`

func TestDecodeState(t *testing.T) {
	t.Run("Full row", func(t *testing.T) {
		a, err := DecodeState(json.RawMessage(validRow))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if a.ICAO24 != "3c6444" {
			t.Errorf("Expected icao24 3c6444, got %s", a.ICAO24)
		}
		if a.Callsign != "DLH9LF" {
			t.Errorf("Expected trimmed callsign DLH9LF, got %q", a.Callsign)
		}
		if a.Longitude != 8.5622 || a.Latitude != 50.0379 {
			t.Errorf("Unexpected position %f,%f", a.Longitude, a.Latitude)
		}
		if a.TrueTrack == nil || *a.TrueTrack != 87.5 {
			t.Errorf("Expected true track 87.5, got %v", a.TrueTrack)
		}
		if a.Squawk == nil || *a.Squawk != "1000" {
			t.Errorf("Expected squawk 1000, got %v", a.Squawk)
		}
		if a.Sensors != nil {
			t.Errorf("Expected nil sensors, got %v", a.Sensors)
		}
		if a.TimePosition == nil || *a.TimePosition != 1700000000 {
			t.Errorf("Expected time position, got %v", a.TimePosition)
		}
		if a.PositionSource != SourceADSB {
			t.Errorf("Expected ADS-B source, got %v", a.PositionSource)
		}
		if a.Category != nil {
			t.Errorf("Expected no category on short row, got %v", *a.Category)
		}
	})

	t.Run("Extended row with category", func(t *testing.T) {
		row := `["abc123", null, "Spain", null, 1700000005, -3.7, 40.4, null, true, null, null, null, [1,2], null, null, false, 2, 4]`
		a, err := DecodeState(json.RawMessage(row))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if a.Callsign != "" {
			t.Errorf("Expected empty callsign, got %q", a.Callsign)
		}
		if !a.OnGround {
			t.Error("Expected on ground")
		}
		if a.BaroAltitude != nil || a.Velocity != nil {
			t.Error("Expected nil optional fields")
		}
		if len(a.Sensors) != 2 {
			t.Errorf("Expected 2 sensors, got %v", a.Sensors)
		}
		if a.PositionSource != SourceMLAT {
			t.Errorf("Expected MLAT, got %v", a.PositionSource)
		}
		if a.Category == nil || *a.Category != 4 {
			t.Errorf("Expected category 4, got %v", a.Category)
		}
	})

	t.Run("Wrong typed optional field stays nil", func(t *testing.T) {
		row := `["abc123", "X", "Spain", null, 1, -3.7, 40.4, "high", false, null, "north", null, null, null, 7700, false, 0]`
		a, err := DecodeState(json.RawMessage(row))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if a.BaroAltitude != nil {
			t.Errorf("Expected nil altitude, got %v", *a.BaroAltitude)
		}
		if a.TrueTrack != nil {
			t.Errorf("Expected nil track, got %v", *a.TrueTrack)
		}
		if a.Squawk != nil {
			t.Errorf("Expected nil squawk for numeric value, got %v", *a.Squawk)
		}
	})

	invalid := []struct {
		name string
		row  string
	}{
		{"not an array", `{"icao24": "abc"}`},
		{"null", `null`},
		{"too short", `["abc123", "X", "Spain"]`},
		{"numeric icao", `[123, "X", "Spain", null, 1, -3.7, 40.4, null, false, null, null, null, null, null, null, false, 0]`},
		{"no position", `["abc123", "X", "Spain", null, 1, null, null, null, false, null, null, null, null, null, null, false, 0]`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(json.RawMessage(tt.row))
			if !errors.Is(err, ErrInvalidRow) {
				t.Errorf("Expected ErrInvalidRow, got %v", err)
			}
		})
	}
}

func TestPositionSourceString(t *testing.T) {
	if SourceFLARM.String() != "FLARM" {
		t.Errorf("Expected FLARM, got %s", SourceFLARM.String())
	}
	if PositionSource(9).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", PositionSource(9).String())
	}
}
