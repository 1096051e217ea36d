package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxAircraft caps the number of records returned for a single viewport query.
const MaxAircraft = 200

// PositionSource identifies where an aircraft position came from.
type PositionSource int

const (
	SourceADSB PositionSource = iota
	SourceASTERIX
	SourceMLAT
	SourceFLARM
)

func (p PositionSource) String() string {
	switch p {
	case SourceADSB:
		return "ADS-B"
	case SourceASTERIX:
		return "ASTERIX"
	case SourceMLAT:
		return "MLAT"
	case SourceFLARM:
		return "FLARM"
	default:
		return "unknown"
	}
}

// Aircraft is one decoded OpenSky state vector. Optional upstream fields stay
// nil when the API reports null or an unexpected type.
type Aircraft struct {
	ICAO24         string         `json:"icao24"`
	Callsign       string         `json:"callsign"`
	OriginCountry  string         `json:"origin_country"`
	TimePosition   *int64         `json:"time_position"`
	LastContact    int64          `json:"last_contact"`
	Longitude      float64        `json:"longitude"`
	Latitude       float64        `json:"latitude"`
	BaroAltitude   *float64       `json:"baro_altitude"`
	OnGround       bool           `json:"on_ground"`
	Velocity       *float64       `json:"velocity"`
	TrueTrack      *float64       `json:"true_track"`
	VerticalRate   *float64       `json:"vertical_rate"`
	Sensors        []int          `json:"sensors"`
	GeoAltitude    *float64       `json:"geo_altitude"`
	Squawk         *string        `json:"squawk"`
	SPI            bool           `json:"spi"`
	PositionSource PositionSource `json:"position_source"`
	Category       *int           `json:"category,omitempty"`
}

// StatesResponse is the body of /states/all.
type StatesResponse struct {
	Time   int64             `json:"time"`
	States []json.RawMessage `json:"states"`
}

// StatesResult is what a viewport query hands back to callers. Dropped counts
// rows that could not be decoded into an Aircraft.
type StatesResult struct {
	Time      int64
	Aircraft  []Aircraft
	Dropped   int
	Truncated bool
}

// Empty reports whether the query produced no aircraft.
func (r *StatesResult) Empty() bool {
	return r == nil || len(r.Aircraft) == 0
}

var ErrInvalidRow = errors.New("invalid state row")

// State vector field positions as documented by the OpenSky REST API.
const (
	fieldICAO24 = iota
	fieldCallsign
	fieldOriginCountry
	fieldTimePosition
	fieldLastContact
	fieldLongitude
	fieldLatitude
	fieldBaroAltitude
	fieldOnGround
	fieldVelocity
	fieldTrueTrack
	fieldVerticalRate
	fieldSensors
	fieldGeoAltitude
	fieldSquawk
	fieldSPI
	fieldPositionSource
	fieldCategory

	minStateFields = fieldPositionSource + 1
)

// stateRow gives named access to one positional state vector.
type stateRow []json.RawMessage

func (r stateRow) raw(i int) json.RawMessage {
	if i >= len(r) {
		return nil
	}
	v := bytes.TrimSpace(r[i])
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	return v
}

func (r stateRow) str(i int) *string {
	v := r.raw(i)
	if v == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	return &s
}

func (r stateRow) float(i int) *float64 {
	v := r.raw(i)
	if v == nil {
		return nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil
	}
	return &f
}

func (r stateRow) integer(i int) *int64 {
	f := r.float(i)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

func (r stateRow) boolean(i int) bool {
	v := r.raw(i)
	if v == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false
	}
	return b
}

func (r stateRow) ints(i int) []int {
	v := r.raw(i)
	if v == nil {
		return nil
	}
	var out []int
	if err := json.Unmarshal(v, &out); err != nil {
		return nil
	}
	return out
}

// DecodeState turns one raw state row into an Aircraft. A row must be an array
// carrying at least the documented fields, a string icao24 and a position.
func DecodeState(raw json.RawMessage) (Aircraft, error) {
	var row stateRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return Aircraft{}, fmt.Errorf("%w: not an array", ErrInvalidRow)
	}
	if len(row) < minStateFields {
		return Aircraft{}, fmt.Errorf("%w: %d fields, need %d", ErrInvalidRow, len(row), minStateFields)
	}

	icao := row.str(fieldICAO24)
	if icao == nil || strings.TrimSpace(*icao) == "" {
		return Aircraft{}, fmt.Errorf("%w: missing icao24", ErrInvalidRow)
	}
	lon, lat := row.float(fieldLongitude), row.float(fieldLatitude)
	if lon == nil || lat == nil {
		return Aircraft{}, fmt.Errorf("%w: %s has no position", ErrInvalidRow, *icao)
	}

	a := Aircraft{
		ICAO24:       strings.ToLower(strings.TrimSpace(*icao)),
		TimePosition: row.integer(fieldTimePosition),
		Longitude:    *lon,
		Latitude:     *lat,
		BaroAltitude: row.float(fieldBaroAltitude),
		OnGround:     row.boolean(fieldOnGround),
		Velocity:     row.float(fieldVelocity),
		TrueTrack:    row.float(fieldTrueTrack),
		VerticalRate: row.float(fieldVerticalRate),
		Sensors:      row.ints(fieldSensors),
		GeoAltitude:  row.float(fieldGeoAltitude),
		Squawk:       row.str(fieldSquawk),
		SPI:          row.boolean(fieldSPI),
	}
	if cs := row.str(fieldCallsign); cs != nil {
		a.Callsign = strings.TrimSpace(*cs)
	}
	if country := row.str(fieldOriginCountry); country != nil {
		a.OriginCountry = *country
	}
	if lc := row.integer(fieldLastContact); lc != nil {
		a.LastContact = *lc
	}
	if src := row.integer(fieldPositionSource); src != nil {
		a.PositionSource = PositionSource(*src)
	}
	if cat := row.integer(fieldCategory); cat != nil {
		c := int(*cat)
		a.Category = &c
	}

	return a, nil
}
