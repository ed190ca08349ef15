package controllers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/services"
)

type ReferralController struct {
	referrals *services.ReferralService
	logger    *zap.Logger
}

func NewReferralController(referrals *services.ReferralService, logger *zap.Logger) *ReferralController {
	return &ReferralController{referrals: referrals, logger: logger.Named("referral-controller")}
}

// CreateCode handles POST /api/referrals/code. Repeated calls return the same code.
func (rc *ReferralController) CreateCode(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, rc.logger, err)
	}

	code, err := rc.referrals.CreateCode(ctx, userID)
	if err != nil {
		return fail(c, rc.logger, err)
	}
	return ok(c, code)
}

// ValidateCode handles the public GET /api/referrals/validate/:code
func (rc *ReferralController) ValidateCode(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	result, err := rc.referrals.ValidateCode(ctx, c.Param("code"))
	if err != nil {
		return fail(c, rc.logger, err)
	}
	return ok(c, result)
}

// HandleReferral handles POST /api/referrals/apply for a newly registered user
func (rc *ReferralController) HandleReferral(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, rc.logger, err)
	}

	var req models.ReferralRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, rc.logger, err)
	}

	rel, err := rc.referrals.ApplyCode(ctx, userID, req.ReferralCode)
	if err != nil {
		return fail(c, rc.logger, err)
	}
	return c.JSON(http.StatusCreated, models.OK(rel))
}

// GetReferralData handles GET /api/referrals/data
func (rc *ReferralController) GetReferralData(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, rc.logger, err)
	}

	summary, err := rc.referrals.ReferralSummary(ctx, userID)
	if err != nil {
		return fail(c, rc.logger, err)
	}
	return ok(c, summary)
}
