package weather

import (
	"fmt"
	"image"
	"math"
)

// Coordinates is a latitude/longitude pair as reported by the provider.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Condition is the provider's short summary of the current weather.
// Icon is an opaque code used to fetch the matching image asset.
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Record is the parsed result of one successful current-weather fetch.
// Temperatures are in the provider's unit (Kelvin unless a unit is configured),
// humidity in percent and pressure in hPa.
type Record struct {
	Name      string      `json:"name"`
	Location  Coordinates `json:"location"`
	Temp      float64     `json:"temp"`
	TempMin   float64     `json:"tempMin"`
	TempMax   float64     `json:"tempMax"`
	Humidity  float64     `json:"humidity"`
	Pressure  float64     `json:"pressure"`
	Condition Condition   `json:"condition"`
}

// Validate reports the first numeric field that is not a finite number.
func (r Record) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"location.lat", r.Location.Lat},
		{"location.lon", r.Location.Lon},
		{"temp", r.Temp},
		{"tempMin", r.TempMin},
		{"tempMax", r.TempMax},
		{"humidity", r.Humidity},
		{"pressure", r.Pressure},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s is not finite", f.name)
		}
	}
	return nil
}

// Icon is a decoded condition icon. Data holds the raw bytes as served.
type Icon struct {
	Code        string      `json:"code"`
	ContentType string      `json:"contentType"`
	Data        []byte      `json:"-"`
	Image       image.Image `json:"-"`
}

// Location identifies a city for which weather is requested.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// Query returns the provider location term, "city,country".
func (l Location) Query() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + "," + l.Country
}

func (l Location) String() string {
	return l.Query()
}
