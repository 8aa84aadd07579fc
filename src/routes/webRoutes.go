package routes

import (
	"github.com/enzococca/mekan-admin/src/controllers"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
)

func SetupWebRoutes(router *gin.Engine, service *services.UserService, sessions *middleware.Sessions, catalog *models.Catalog, limiter *middleware.RateLimiter) {
	authController := controllers.NewAuthController(service, sessions)
	adminController := controllers.NewAdminController(service, catalog)

	// Public routes
	router.GET("/login", authController.LoginPage)
	router.POST("/login", limiter.Limit(), authController.Login)
	router.GET("/logout", authController.Logout)
	router.GET("/register", authController.RegisterPage)
	router.POST("/register", limiter.Limit(), authController.Register)

	// Session routes
	session := router.Group("/")
	session.Use(middleware.RequireSession(false))
	{
		session.GET("/", adminController.Dashboard)
		session.GET("/activity", adminController.Activity)
		session.GET("/api/stats", adminController.UsageStats)
		session.GET("/archaeological", middleware.RequirePermission(models.PermView, false), adminController.Archaeological)
	}

	// User administration
	admin := router.Group("/")
	admin.Use(middleware.RequireSession(false), middleware.RequirePermission(models.PermManageUsers, false))
	{
		admin.GET("/users", adminController.Users)
		admin.GET("/users/:id/edit", adminController.EditUserPage)
		admin.POST("/users/:id/edit", adminController.EditUser)
		admin.GET("/roles", adminController.Roles)
		admin.GET("/tokens", adminController.Tokens)
		admin.POST("/tokens/create", adminController.CreateToken)
		admin.POST("/tokens/:id/revoke", adminController.RevokeToken)
	}
}
