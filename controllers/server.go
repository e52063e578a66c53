package controllers

import (
	"net/http"

	"stylemorphapi/models"
	"stylemorphapi/services"

	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// SetupServer wires the try-on API. closet, asynqClient and asynqInspector may be nil;
// the routes that need them answer 503 then.
func SetupServer(
	store *services.SessionStore,
	runner services.BatchRunner,
	closet services.ClosetProvider,
	asynqClient *asynq.Client,
	asynqInspector *asynq.Inspector,
) *echo.Echo {
	e := echo.New()

	v := validator.New()
	v.RegisterValidation("imagemime", models.ValidateImageMime)
	e.Validator = &CustomValidator{validator: v}

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__asynqclient", asynqClient)
			c.Set("__asynqinspector", asynqInspector)
			return next(c)
		}
	})
	e.Use(middleware.BodyLimit("12M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	e.GET("/healthcheck", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	tryOnController := TryOnController{Store: store, Runner: runner, Closet: closet}
	tryOnController.SessionRoutes(e.Group("/sessions"))

	batchGroup := e.Group("/batches")
	tryOnController.BatchRoutes(batchGroup)

	return e
}
