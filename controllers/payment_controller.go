package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/middleware"
	"github.com/lvanfai123/moving-service-sub001/models"
	"github.com/lvanfai123/moving-service-sub001/services"
)

const requestTimeout = 15 * time.Second

type PaymentController struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

func NewPaymentController(payments *services.PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, logger: logger.Named("payment-controller")}
}

// StartDeposit handles POST /api/orders/:orderId/deposit
func (pc *PaymentController) StartDeposit(c echo.Context) error {
	return pc.start(c, pc.payments.StartDeposit)
}

// StartFinal handles POST /api/orders/:orderId/final
func (pc *PaymentController) StartFinal(c echo.Context) error {
	return pc.start(c, pc.payments.StartFinal)
}

func (pc *PaymentController) start(c echo.Context, fn func(context.Context, models.StartPaymentRequest) (*models.PaymentIntentResult, error)) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, pc.logger, err)
	}

	var req models.StartPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, pc.logger, err)
	}
	req.OrderID = c.Param("orderId")
	req.UserID = userID

	result, err := fn(ctx, req)
	if err != nil {
		return fail(c, pc.logger, err)
	}
	return c.JSON(http.StatusCreated, models.OK(result))
}

// ConfirmPayment handles POST /api/payments/:paymentId/confirm
func (pc *PaymentController) ConfirmPayment(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, pc.logger, err)
	}

	var req models.ConfirmRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, pc.logger, err)
	}

	result, err := pc.payments.ConfirmCompletion(ctx, c.Param("paymentId"), req.IntentID, userID)
	if err != nil {
		return fail(c, pc.logger, err)
	}
	return ok(c, result)
}

// RequestRefund handles POST /api/payments/:paymentId/refund for the payer
// and the admin refund route. The actor type comes from the token.
func (pc *PaymentController) RequestRefund(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, pc.logger, err)
	}

	var req models.RefundRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, pc.logger, err)
	}
	req.PaymentID = c.Param("paymentId")
	req.UserID = userID
	req.ActorType = middleware.ExtractUserType(c)

	result, err := pc.payments.RequestRefund(ctx, req)
	if err != nil {
		return fail(c, pc.logger, err)
	}
	return ok(c, result)
}

// GetPayment handles GET /api/payments/:paymentId
func (pc *PaymentController) GetPayment(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, pc.logger, err)
	}

	payment, err := pc.payments.GetPayment(ctx, c.Param("paymentId"), userID)
	if err != nil {
		return fail(c, pc.logger, err)
	}
	return ok(c, payment)
}

// GetOrderPaymentState handles GET /api/orders/:orderId/payment-state
func (pc *PaymentController) GetOrderPaymentState(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := currentUser(c)
	if err != nil {
		return fail(c, pc.logger, err)
	}

	view, err := pc.payments.OrderState(ctx, c.Param("orderId"), userID)
	if err != nil {
		return fail(c, pc.logger, err)
	}
	return ok(c, view)
}

// HandleWhishCallback handles the success and failure redirects of the
// provider. Both ask the provider for the real status through the normal
// confirmation path, so a forged callback cannot mark a payment paid.
func (pc *PaymentController) HandleWhishCallback(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	paymentID := c.QueryParam("paymentId")
	externalID := c.QueryParam("externalId")
	if paymentID == "" || externalID == "" {
		pc.logger.Warn("whish callback without identifiers",
			zap.String("paymentId", paymentID),
			zap.String("externalId", externalID),
		)
		return fail(c, pc.logger, models.NewError(models.ErrInvalid, "missing paymentId or externalId parameter"))
	}

	result, err := pc.payments.ConfirmFromGateway(ctx, paymentID, externalID)
	if err != nil {
		pc.logger.Info("whish callback not confirmed",
			zap.String("paymentId", paymentID),
			zap.String("kind", string(models.KindOf(err))),
		)
		return fail(c, pc.logger, err)
	}
	return ok(c, result)
}
