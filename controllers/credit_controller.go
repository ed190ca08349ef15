package controllers

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/services"
)

type CreditController struct {
	ledger   *services.CreditLedger
	currency string
	logger   *zap.Logger
}

func NewCreditController(ledger *services.CreditLedger, currency string, logger *zap.Logger) *CreditController {
	return &CreditController{ledger: ledger, currency: currency, logger: logger.Named("credit-controller")}
}

// GetBalance handles GET /api/credits/balance
func (cc *CreditController) GetBalance(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, cc.logger, err)
	}

	balance, err := cc.ledger.AvailableBalance(ctx, userID)
	if err != nil {
		return fail(c, cc.logger, err)
	}
	return ok(c, models.BalanceResponse{
		UserID:    userID,
		Available: balance,
		Currency:  cc.currency,
	})
}

// GetEntries handles GET /api/credits/entries
func (cc *CreditController) GetEntries(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, cc.logger, err)
	}

	entries, err := cc.ledger.Entries(ctx, userID)
	if err != nil {
		return fail(c, cc.logger, err)
	}
	if entries == nil {
		entries = []*models.CreditEntry{}
	}
	return ok(c, entries)
}
