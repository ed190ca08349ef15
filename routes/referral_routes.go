// routes/referral_routes.go
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lvanfai123/moving-service-sub001/controllers"
)

// RegisterReferralRoutes registers referral code and relationship routes
func RegisterReferralRoutes(e *echo.Echo, rc *controllers.ReferralController, auth echo.MiddlewareFunc) {
	// Public so a landing page can check a code before signup
	e.GET("/api/referrals/validate/:code", rc.ValidateCode)

	referralGroup := e.Group("/api/referrals", auth)
	referralGroup.POST("/code", rc.CreateCode)
	referralGroup.POST("/apply", rc.HandleReferral)
	referralGroup.GET("/data", rc.GetReferralData)
}

// RegisterCreditRoutes registers the credit ledger routes
func RegisterCreditRoutes(e *echo.Echo, cc *controllers.CreditController, auth echo.MiddlewareFunc) {
	creditGroup := e.Group("/api/credits", auth)
	creditGroup.GET("/balance", cc.GetBalance)
	creditGroup.GET("/entries", cc.GetEntries)
}
