package session

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/bchazalet/weatherapp/internal/weather"
)

// View is what a display renders: every field preformatted.
type View struct {
	Cities          []string `json:"cities"`
	Position        int      `json:"position"`
	SelectorEnabled bool     `json:"selectorEnabled"`

	Name      string `json:"name,omitempty"`
	Location  string `json:"location,omitempty"`
	Temp      string `json:"temp,omitempty"`
	TempMin   string `json:"tempMin,omitempty"`
	TempMax   string `json:"tempMax,omitempty"`
	Humidity  string `json:"humidity,omitempty"`
	Pressure  string `json:"pressure,omitempty"`
	Condition string `json:"condition,omitempty"`

	IconCode    string `json:"iconCode,omitempty"`
	IconVisible bool   `json:"iconVisible"`

	Error string `json:"error,omitempty"`
}

// View renders the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Cities:          c.Cities(),
		Position:        c.position,
		SelectorEnabled: c.running == uuid.Nil,
		IconVisible:     c.iconVisible && c.icon != nil,
		Error:           c.lastError,
	}
	if c.record != nil {
		renderRecord(&v, *c.record)
	}
	if v.IconVisible {
		v.IconCode = c.icon.Code
	}
	return v
}

// Icon returns the displayed icon, if one is visible.
func (c *Controller) Icon() (weather.Icon, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.iconVisible || c.icon == nil {
		return weather.Icon{}, false
	}
	return *c.icon, true
}

func renderRecord(v *View, rec weather.Record) {
	v.Name = rec.Name
	v.Location = FormatLocation(rec.Location)
	v.Temp = FormatDecimal(rec.Temp)
	v.TempMin = FormatDecimal(rec.TempMin)
	v.TempMax = FormatDecimal(rec.TempMax)
	v.Humidity = FormatDecimal(rec.Humidity)
	v.Pressure = FormatDecimal(rec.Pressure)
	v.Condition = rec.Condition.Main + ": " + rec.Condition.Description
}

// FormatDecimal renders v with exactly one decimal place.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// FormatLocation renders coordinates as "lat, lon" without rounding.
func FormatLocation(c weather.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + ", " + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}
