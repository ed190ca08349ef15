package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lvanfai123/moving-service-sub001/controllers"
	"github.com/lvanfai123/moving-service-sub001/middleware"
	"github.com/lvanfai123/moving-service-sub001/models"
)

// RegisterAdminRoutes sets up the admin routes. Admin refunds go through the
// same handler; the actor type from the token unlocks the policy override.
func RegisterAdminRoutes(e *echo.Echo, pc *controllers.PaymentController, auth echo.MiddlewareFunc) {
	admin := e.Group("/api/admin", auth, middleware.RequireUserType(models.ActorAdmin))
	admin.POST("/payments/:paymentId/refund", pc.RequestRefund)
}
