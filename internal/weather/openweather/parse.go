package openweather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/bchazalet/weatherapp/internal/weather"
)

const maxIconBytes = 1 << 20

var validate = validator.New()

// currentPayload mirrors the fields of /data/2.5/weather we rely on. Pointers
// distinguish a missing field from a zero value.
type currentPayload struct {
	Name  *string `json:"name" validate:"required"`
	Coord *struct {
		Lat *float64 `json:"lat" validate:"required"`
		Lon *float64 `json:"lon" validate:"required"`
	} `json:"coord" validate:"required"`
	Main *struct {
		Temp     *float64 `json:"temp" validate:"required"`
		TempMin  *float64 `json:"temp_min" validate:"required"`
		TempMax  *float64 `json:"temp_max" validate:"required"`
		Humidity *float64 `json:"humidity" validate:"required"`
		Pressure *float64 `json:"pressure" validate:"required"`
	} `json:"main" validate:"required"`
	Weather []struct {
		Main        *string `json:"main" validate:"required"`
		Description *string `json:"description" validate:"required"`
		Icon        *string `json:"icon" validate:"required,min=1"`
	} `json:"weather" validate:"required,min=1,dive"`
}

// parseCurrent builds a Record from a response body. It either returns a
// complete record or a weather.ErrParse error with a zero Record.
func parseCurrent(r io.Reader) (weather.Record, error) {
	var payload currentPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return weather.Record{}, fmt.Errorf("%w: decode: %w", weather.ErrParse, err)
	}
	if err := validate.Struct(payload); err != nil {
		return weather.Record{}, fmt.Errorf("%w: %w", weather.ErrParse, err)
	}

	cond := payload.Weather[0]
	rec := weather.Record{
		Name: *payload.Name,
		Location: weather.Coordinates{
			Lat: *payload.Coord.Lat,
			Lon: *payload.Coord.Lon,
		},
		Temp:     *payload.Main.Temp,
		TempMin:  *payload.Main.TempMin,
		TempMax:  *payload.Main.TempMax,
		Humidity: *payload.Main.Humidity,
		Pressure: *payload.Main.Pressure,
		Condition: weather.Condition{
			Main:        *cond.Main,
			Description: *cond.Description,
			Icon:        *cond.Icon,
		},
	}
	if err := rec.Validate(); err != nil {
		return weather.Record{}, fmt.Errorf("%w: %w", weather.ErrParse, err)
	}
	return rec, nil
}

// decodeIcon reads an icon body and decodes it with the registered image codecs.
func decodeIcon(code string, r io.Reader) (weather.Icon, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxIconBytes+1))
	if err != nil {
		return weather.Icon{}, fmt.Errorf("%w: read icon: %w", weather.ErrNetwork, err)
	}
	if len(data) > maxIconBytes {
		return weather.Icon{}, fmt.Errorf("%w: icon %q exceeds %d bytes", weather.ErrParse, code, maxIconBytes)
	}

	mtype := mimetype.Detect(data)
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return weather.Icon{}, fmt.Errorf("%w: decode icon %q (%s): %w", weather.ErrParse, code, mtype.String(), err)
	}

	return weather.Icon{
		Code:        code,
		ContentType: mtype.String(),
		Data:        data,
		Image:       img,
	}, nil
}
