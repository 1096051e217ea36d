package geo

import "flight-map-dashboard/internal/model"

type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lon, lat]
}

type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// EmptyCollection is what the map shows when a refresh has nothing to draw.
func EmptyCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// ToFeatureCollection maps each aircraft to one point feature, keeping order.
func ToFeatureCollection(aircraft []model.Aircraft) FeatureCollection {
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(aircraft)),
	}
	for i := range aircraft {
		fc.Features = append(fc.Features, ToFeature(&aircraft[i]))
	}
	return fc
}

// ToFeature builds a point feature whose properties mirror the state vector.
// Missing optional values are written as JSON null.
func ToFeature(a *model.Aircraft) Feature {
	props := map[string]any{
		"icao24":          a.ICAO24,
		"callsign":        a.Callsign,
		"origin_country":  a.OriginCountry,
		"time_position":   optional(a.TimePosition),
		"last_contact":    a.LastContact,
		"longitude":       a.Longitude,
		"latitude":        a.Latitude,
		"baro_altitude":   optional(a.BaroAltitude),
		"on_ground":       a.OnGround,
		"velocity":        optional(a.Velocity),
		"true_track":      optional(a.TrueTrack),
		"vertical_rate":   optional(a.VerticalRate),
		"sensors":         a.Sensors,
		"geo_altitude":    optional(a.GeoAltitude),
		"squawk":          optional(a.Squawk),
		"spi":             a.SPI,
		"position_source": a.PositionSource.String(),
	}
	if a.Category != nil {
		props["category"] = *a.Category
	}

	return Feature{
		Type: "Feature",
		ID:   a.ICAO24,
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: [2]float64{a.Longitude, a.Latitude},
		},
		Properties: props,
	}
}

func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
