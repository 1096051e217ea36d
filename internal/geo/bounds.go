// Package geo holds the viewport rectangle and the GeoJSON shapes pushed to the map.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
)

var ErrInvalidBounds = errors.New("invalid bounds")

// Bounds is the visible map rectangle, south-west to north-east corner.
type Bounds struct {
	South float64 `json:"lamin"`
	West  float64 `json:"lomin"`
	North float64 `json:"lamax"`
	East  float64 `json:"lomax"`
}

// ParseCorners reads the map widget's [[lat_sw, lon_sw], [lat_ne, lon_ne]] shape.
// Anything that is not a 2x2 numeric structure is rejected.
func ParseCorners(v any) (Bounds, error) {
	rows, ok := v.([]any)
	if !ok || len(rows) != 2 {
		return Bounds{}, fmt.Errorf("%w: expected two corners", ErrInvalidBounds)
	}

	var corners [2][2]float64
	for i, r := range rows {
		pair, ok := r.([]any)
		if !ok || len(pair) != 2 {
			return Bounds{}, fmt.Errorf("%w: corner %d is not a lat/lon pair", ErrInvalidBounds, i)
		}
		for j, c := range pair {
			f, ok := toFloat(c)
			if !ok {
				return Bounds{}, fmt.Errorf("%w: corner %d value %d is not numeric", ErrInvalidBounds, i, j)
			}
			corners[i][j] = f
		}
	}

	b := Bounds{
		South: corners[0][0],
		West:  corners[0][1],
		North: corners[1][0],
		East:  corners[1][1],
	}
	return b.Normalize(), nil
}

// ParseQuery reads lamin/lomin/lamax/lomax from a query string.
func ParseQuery(q url.Values) (Bounds, error) {
	keys := [4]string{"lamin", "lomin", "lamax", "lomax"}
	var vals [4]float64
	for i, k := range keys {
		raw := q.Get(k)
		if raw == "" {
			return Bounds{}, fmt.Errorf("%w: missing %s", ErrInvalidBounds, k)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Bounds{}, fmt.Errorf("%w: %s=%q", ErrInvalidBounds, k, raw)
		}
		vals[i] = f
	}
	b := Bounds{South: vals[0], West: vals[1], North: vals[2], East: vals[3]}
	return b.Normalize(), nil
}

// UnmarshalJSON accepts the corner-pair form.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBounds, err)
	}
	parsed, err := ParseCorners(v)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalJSON writes the corner-pair form so bounds round-trip through the page.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]float64{{b.South, b.West}, {b.North, b.East}})
}

// Normalize clamps latitudes and orders the corners. Longitudes from a map
// panned onto another world copy are shifted back by whole turns around the
// box centre; a box spanning a full turn or more becomes the whole globe.
func (b Bounds) Normalize() Bounds {
	b.South = clamp(b.South, -90, 90)
	b.North = clamp(b.North, -90, 90)
	if b.South > b.North {
		b.South, b.North = b.North, b.South
	}
	if b.West > b.East {
		b.West, b.East = b.East, b.West
	}

	if b.East-b.West >= 360 {
		b.West, b.East = -180, 180
		return b
	}
	shift := 360 * math.Round((b.West+b.East)/2/360)
	b.West = clamp(b.West-shift, -180, 180)
	b.East = clamp(b.East-shift, -180, 180)
	return b
}

// Query renders the bounds as upstream query parameters.
func (b Bounds) Query() url.Values {
	q := url.Values{}
	q.Set("lamin", strconv.FormatFloat(b.South, 'f', 4, 64))
	q.Set("lomin", strconv.FormatFloat(b.West, 'f', 4, 64))
	q.Set("lamax", strconv.FormatFloat(b.North, 'f', 4, 64))
	q.Set("lomax", strconv.FormatFloat(b.East, 'f', 4, 64))
	return q
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%.4f,%.4f .. %.4f,%.4f]", b.South, b.West, b.North, b.East)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
