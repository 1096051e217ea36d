// Package detail turns a clicked map feature into the fields shown in the aircraft modal.
package detail

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Placeholder stands in for any property that is missing or of the wrong type.
const Placeholder = "N/A"

const DefaultTrackerURL = "https://www.flightradar24.com"

// Detail is the modal content. Every display field is already a string.
type Detail struct {
	Open         bool   `json:"open"`
	ICAO24       string `json:"icao24,omitempty"`
	Callsign     string `json:"callsign,omitempty"`
	Heading      string `json:"heading,omitempty"`
	OnGround     string `json:"on_ground,omitempty"`
	Velocity     string `json:"velocity,omitempty"`
	VerticalRate string `json:"vertical_rate,omitempty"`
	Altitude     string `json:"altitude,omitempty"`
	Squawk       string `json:"squawk,omitempty"`
	Link         string `json:"link,omitempty"`
}

type Lookup struct {
	trackerURL string
}

// NewLookup builds a lookup linking callsigns to trackerURL.
func NewLookup(trackerURL string) *Lookup {
	if trackerURL == "" {
		trackerURL = DefaultTrackerURL
	}
	return &Lookup{trackerURL: strings.TrimRight(trackerURL, "/")}
}

// FromFeature accepts either a whole GeoJSON feature or its bare properties.
func (l *Lookup) FromFeature(feature map[string]any) Detail {
	if props, ok := feature["properties"].(map[string]any); ok {
		return l.Lookup(props)
	}
	return l.Lookup(feature)
}

// Lookup extracts the display fields from feature properties. A nil or empty
// map means nothing was clicked and yields a closed Detail.
func (l *Lookup) Lookup(props map[string]any) Detail {
	if len(props) == 0 {
		return Detail{}
	}

	d := Detail{
		Open:         true,
		ICAO24:       text(props["icao24"]),
		Callsign:     text(props["callsign"]),
		Heading:      number(props["true_track"], 0, "°"),
		OnGround:     flag(props["on_ground"]),
		Velocity:     number(props["velocity"], 1, " m/s"),
		VerticalRate: number(props["vertical_rate"], 1, " m/s"),
		Altitude:     altitude(props),
		Squawk:       squawk(props["squawk"]),
	}
	if d.Callsign != Placeholder {
		d.Link = l.trackerURL + "/" + url.PathEscape(d.Callsign)
	}
	return d
}

func altitude(props map[string]any) string {
	if v := number(props["baro_altitude"], 0, " m"); v != Placeholder {
		return v
	}
	return number(props["geo_altitude"], 0, " m")
}

func text(v any) string {
	s, ok := v.(string)
	if !ok {
		return Placeholder
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	return s
}

func number(v any, precision int, unit string) string {
	f, ok := v.(float64)
	if !ok {
		switch n := v.(type) {
		case int:
			f, ok = float64(n), true
		case int64:
			f, ok = float64(n), true
		}
	}
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return Placeholder
	}
	return strconv.FormatFloat(f, 'f', precision, 64) + unit
}

func flag(v any) string {
	b, ok := v.(bool)
	if !ok {
		return Placeholder
	}
	if b {
		return "Yes"
	}
	return "No"
}

// squawk accepts the transponder code as a string; a JSON number is also
// tolerated as long as it is a whole code.
func squawk(v any) string {
	switch s := v.(type) {
	case string:
		return text(s)
	case float64:
		if s >= 0 && s <= 7777 && s == math.Trunc(s) {
			return fmt.Sprintf("%04d", int(s))
		}
	}
	return Placeholder
}
