package controllers

import (
	"errors"
	"net/http"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/metrics"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
)

type AuthController struct {
	service  *services.UserService
	sessions *middleware.Sessions
}

func NewAuthController(service *services.UserService, sessions *middleware.Sessions) *AuthController {
	return &AuthController{service: service, sessions: sessions}
}

func errorFlash(msg string) *middleware.Flash {
	return &middleware.Flash{Kind: middleware.FlashError, Message: msg}
}

func (ac *AuthController) LoginPage(c *gin.Context) {
	if middleware.CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	render(c, http.StatusOK, "login.html", gin.H{"Title": "Login"})
}

// Login checks the form credentials. Failures re-render the form without a cookie.
func (ac *AuthController) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		render(c, http.StatusBadRequest, "login.html", gin.H{
			"Title": "Login",
			"Flash": errorFlash("Username and password are required"),
		})
		return
	}

	user, err := ac.service.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			logging.Info().Str("username", req.Username).Msg("login rejected")
			render(c, http.StatusOK, "login.html", gin.H{
				"Title": "Login",
				"Flash": errorFlash("Invalid username or password"),
			})
			return
		}
		failPage(c, err)
		return
	}

	if err := ac.sessions.Issue(c, user.UserID); err != nil {
		failPage(c, err)
		return
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	name := user.FullName
	if name == "" {
		name = user.Username
	}
	middleware.SetFlash(c, middleware.FlashSuccess, "Welcome, "+name+"!")
	c.Redirect(http.StatusFound, "/")
}

func (ac *AuthController) Logout(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		if err := ac.service.LogActivity(c.Request.Context(), user.UserID, "logout", "", "", nil); err != nil {
			logging.Warn().Err(err).Int("user_id", user.UserID).Msg("activity log write failed")
		}
	}
	ac.sessions.Clear(c)
	middleware.SetFlash(c, middleware.FlashInfo, "You have been logged out")
	c.Redirect(http.StatusFound, "/login")
}

func (ac *AuthController) RegisterPage(c *gin.Context) {
	render(c, http.StatusOK, "register.html", gin.H{"Title": "Register", "Token": c.Query("token")})
}

// Register creates an account from an invitation token.
func (ac *AuthController) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		render(c, http.StatusBadRequest, "register.html", gin.H{"Title": "Register", "Flash": errorFlash(err.Error())})
		return
	}

	user, err := ac.service.Register(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			failPage(c, err)
			return
		}
		render(c, status, "register.html", gin.H{
			"Title": "Register",
			"Token": req.Token,
			"Flash": errorFlash(err.Error()),
		})
		return
	}

	logging.Info().Str("username", user.Username).Int("role_id", user.RoleID).Msg("user registered")
	middleware.SetFlash(c, middleware.FlashSuccess, "Account created, please log in")
	c.Redirect(http.StatusFound, "/login")
}
