package detail

//go:generate go tool templ generate

type field struct {
	Label string
	Value string
}

func modalTitle(d Detail) string {
	if d.Callsign == Placeholder {
		return d.ICAO24
	}
	return d.Callsign
}

func modalFields(d Detail) []field {
	return []field{
		{"ICAO24", d.ICAO24},
		{"Heading", d.Heading},
		{"On ground", d.OnGround},
		{"Velocity", d.Velocity},
		{"Vertical rate", d.VerticalRate},
		{"Altitude", d.Altitude},
		{"Squawk", d.Squawk},
	}
}
