package domain

// ResolvedLocation is a place name extracted from the query and resolved to
// coordinates by the geocoder.
type ResolvedLocation struct {
	Name             string  `json:"name"`
	FormattedAddress string  `json:"formatted_address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
}

// CountyRecord identifies the county containing a resolved location.
type CountyRecord struct {
	FIPSCode   string  `json:"fips_code"`
	CountyName string  `json:"county_name"`
	StateName  string  `json:"state_name"`
	AreaSqMi   float64 `json:"area_sqmi"`
}

// Ref returns the highlight reference for the county.
func (c CountyRecord) Ref() CountyRef {
	return CountyRef{FIPSCode: c.FIPSCode, CountyName: c.CountyName, StateName: c.StateName}
}

// CountyRef is the structured side channel a UI uses to highlight a county
// without parsing answer text.
type CountyRef struct {
	FIPSCode   string `json:"fips_code"`
	CountyName string `json:"county_name"`
	StateName  string `json:"state_name"`
}

// PrecipitationRecord is one month of observed precipitation for a county.
type PrecipitationRecord struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Inches float64 `json:"inches"`
}
