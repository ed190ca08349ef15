package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lvanfai123/moving-service-sub001/controllers"
)

// RegisterPaymentRoutes registers order payment routes and the provider callbacks
func RegisterPaymentRoutes(e *echo.Echo, pc *controllers.PaymentController, auth echo.MiddlewareFunc) {
	// Whish redirects here without a token
	e.GET("/api/payments/callback/success", pc.HandleWhishCallback)
	e.GET("/api/payments/callback/failure", pc.HandleWhishCallback)

	orderGroup := e.Group("/api/orders", auth)
	orderGroup.POST("/:orderId/deposit", pc.StartDeposit)
	orderGroup.POST("/:orderId/final", pc.StartFinal)
	orderGroup.GET("/:orderId/payment-state", pc.GetOrderPaymentState)

	paymentGroup := e.Group("/api/payments", auth)
	paymentGroup.GET("/:paymentId", pc.GetPayment)
	paymentGroup.POST("/:paymentId/confirm", pc.ConfirmPayment)
	paymentGroup.POST("/:paymentId/refund", pc.RequestRefund)
}
