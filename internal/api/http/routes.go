package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bchazalet/weatherapp/internal/session"
	"github.com/bchazalet/weatherapp/internal/store"
	"github.com/bchazalet/weatherapp/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, ctrl *session.Controller) {
	v1 := app.Group("/api/v1")

	v1.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cities": ctrl.Cities(),
		})
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := locReq.toLocation()
		rec, err := service.FetchByCity(c.UserContext(), loc.City, loc.Country)
		if err != nil {
			return fetchError(err)
		}

		return c.JSON(fiber.Map{
			"location": loc,
			"record":   rec,
		})
	})

	v1.Get("/weather/latest", func(c *fiber.Ctx) error {
		if c.Query("city") == "" && c.Query("country") == "" {
			return c.JSON(fiber.Map{
				"records": service.Latest(),
			})
		}

		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := locReq.toLocation()
		rec, err := service.GetLatest(loc)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read weather data")
		}

		return c.JSON(weather.StoredRecord{Location: loc, Record: rec})
	})

	v1.Get("/weather/icon/:code", func(c *fiber.Ctx) error {
		icon, err := service.FetchIcon(c.UserContext(), c.Params("code"))
		if err != nil {
			return fetchError(err)
		}
		return sendIcon(c, icon)
	})

	v1.Get("/session", func(c *fiber.Ctx) error {
		return c.JSON(ctrl.View())
	})

	v1.Get("/session/icon", func(c *fiber.Ctx) error {
		icon, ok := ctrl.Icon()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no icon displayed")
		}
		return sendIcon(c, icon)
	})

	v1.Post("/session/select", func(c *fiber.Ctx) error {
		var req selectRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := ctrl.Select(*req.Position); err != nil {
			switch {
			case errors.Is(err, session.ErrBusy):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, session.ErrInvalidPosition):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, session.ErrClosed):
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "failed to select city")
			}
		}

		return c.Status(fiber.StatusAccepted).JSON(ctrl.View())
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// fetchError maps a client error onto an HTTP status.
func fetchError(err error) error {
	var perr *weather.ProviderError
	switch {
	case errors.Is(err, weather.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &perr) && perr.NotFound():
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrProvider), errors.Is(err, weather.ErrParse):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrNetwork):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
}

func sendIcon(c *fiber.Ctx, icon weather.Icon) error {
	if icon.ContentType != "" {
		c.Set(fiber.HeaderContentType, icon.ContentType)
	}
	return c.Send(icon.Data)
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	City    string `validate:"required"`
	Country string `validate:"omitempty,alpha,max=3"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{
		City:    l.City,
		Country: l.Country,
	}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	q.City = c.Query("city")
	q.Country = c.Query("country")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// selectRequest is the body of POST /session/select.
type selectRequest struct {
	Position *int `json:"position" validate:"required,min=0"`
}
