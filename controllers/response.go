package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/middleware"
	"github.com/lvanfai123/moving-service-sub001/models"
)

// fail writes err as a failed Result with the status of its kind
func fail(c echo.Context, logger *zap.Logger, err error) error {
	appErr := models.AsAppError(err)
	if appErr.Kind == models.ErrInternal {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.JSON(appErr.HTTPStatus(), models.Failure(appErr))
}

// bindAndValidate binds the request into req and runs the echo validator
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return models.WrapError(models.ErrInvalid, err, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return models.WrapError(models.ErrInvalid, err, "validation failed: %v", err)
	}
	return nil
}

// currentUser returns the authenticated user id or an Unauthorized error
func currentUser(c echo.Context) (string, error) {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return "", models.WrapError(models.ErrUnauthorized, err, "authentication required")
	}
	return userID, nil
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, models.OK(data))
}
