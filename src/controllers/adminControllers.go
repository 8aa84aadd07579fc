package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/services"
	"github.com/gin-gonic/gin"
)

// AdminController serves the server-rendered administration pages.
type AdminController struct {
	service *services.UserService
	catalog *models.Catalog
}

func NewAdminController(service *services.UserService, catalog *models.Catalog) *AdminController {
	return &AdminController{service: service, catalog: catalog}
}

func (ac *AdminController) Dashboard(c *gin.Context) {
	stats, err := ac.service.Dashboard(c.Request.Context())
	if err != nil {
		failPage(c, err)
		return
	}
	render(c, http.StatusOK, "dashboard.html", gin.H{"Title": "Dashboard", "Stats": stats})
}

func (ac *AdminController) Users(c *gin.Context) {
	users, err := ac.service.GetAllUsers(c.Request.Context())
	if err != nil {
		failPage(c, err)
		return
	}
	render(c, http.StatusOK, "users.html", gin.H{"Title": "Users", "Users": users})
}

func (ac *AdminController) EditUserPage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid ID format")
		return
	}
	user, err := ac.service.GetUser(c.Request.Context(), id)
	if err != nil {
		failPage(c, err)
		return
	}
	roles, err := ac.service.GetRoles(c.Request.Context())
	if err != nil {
		failPage(c, err)
		return
	}
	render(c, http.StatusOK, "edit_user.html", gin.H{"Title": "Edit user", "Target": user, "Roles": roles})
}

func (ac *AdminController) EditUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid ID format")
		return
	}
	editPage := fmt.Sprintf("/users/%d/edit", id)

	var in services.UserUpdate
	if err := c.ShouldBind(&in); err != nil {
		middleware.SetFlash(c, middleware.FlashError, err.Error())
		c.Redirect(http.StatusFound, editPage)
		return
	}

	actor := middleware.CurrentUser(c)
	if err := ac.service.UpdateUser(c.Request.Context(), actor.UserID, id, in); err != nil {
		if statusFor(err) >= 500 {
			failPage(c, err)
			return
		}
		middleware.SetFlash(c, middleware.FlashError, err.Error())
		c.Redirect(http.StatusFound, editPage)
		return
	}
	middleware.SetFlash(c, middleware.FlashSuccess, "User updated")
	c.Redirect(http.StatusFound, "/users")
}

func (ac *AdminController) Roles(c *gin.Context) {
	roles, err := ac.service.RolesWithCounts(c.Request.Context())
	if err != nil {
		failPage(c, err)
		return
	}
	render(c, http.StatusOK, "roles.html", gin.H{"Title": "Roles", "Roles": roles})
}

func (ac *AdminController) Tokens(c *gin.Context) {
	tokens, err := ac.service.GetTokens(c.Request.Context())
	if err != nil {
		failPage(c, err)
		return
	}
	roles, err := ac.service.GetRoles(c.Request.Context())
	if err != nil {
		failPage(c, err)
		return
	}
	render(c, http.StatusOK, "tokens.html", gin.H{"Title": "Tokens", "Tokens": tokens, "Roles": roles})
}

func (ac *AdminController) CreateToken(c *gin.Context) {
	var in services.TokenRequest
	if err := c.ShouldBind(&in); err != nil {
		middleware.SetFlash(c, middleware.FlashError, err.Error())
		c.Redirect(http.StatusFound, "/tokens")
		return
	}

	token, err := ac.service.CreateToken(c.Request.Context(), middleware.CurrentUser(c).UserID, in)
	if err != nil {
		if statusFor(err) >= 500 {
			failPage(c, err)
			return
		}
		middleware.SetFlash(c, middleware.FlashError, err.Error())
		c.Redirect(http.StatusFound, "/tokens")
		return
	}
	middleware.SetFlash(c, middleware.FlashSuccess, "Token created: "+token.Token)
	c.Redirect(http.StatusFound, "/tokens")
}

func (ac *AdminController) RevokeToken(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid ID format")
		return
	}
	if err := ac.service.RevokeToken(c.Request.Context(), middleware.CurrentUser(c).UserID, id); err != nil {
		if statusFor(err) >= 500 {
			failPage(c, err)
			return
		}
		middleware.SetFlash(c, middleware.FlashError, err.Error())
		c.Redirect(http.StatusFound, "/tokens")
		return
	}
	middleware.SetFlash(c, middleware.FlashSuccess, "Token revoked")
	c.Redirect(http.StatusFound, "/tokens")
}

func (ac *AdminController) Activity(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	activity, err := ac.service.GetActivity(c.Request.Context(), page)
	if err != nil {
		failPage(c, err)
		return
	}
	render(c, http.StatusOK, "activity.html", gin.H{"Title": "Activity", "Activity": activity})
}

// UsageStats feeds the dashboard charts.
func (ac *AdminController) UsageStats(c *gin.Context) {
	stats, err := ac.service.UsageStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type entityLink struct {
	Label string
	Table string
	Path  string
}

// Archaeological lists the survey entities with links to the current API.
func (ac *AdminController) Archaeological(c *gin.Context) {
	latest := models.APIVersions[len(models.APIVersions)-1]
	links := make([]entityLink, 0, len(latest.Entities))
	for _, r := range latest.Entities {
		e := ac.catalog.MustLookup(r.Entity)
		links = append(links, entityLink{Label: e.Label, Table: e.Table, Path: r.Path})
	}
	render(c, http.StatusOK, "archaeological.html", gin.H{"Title": "Data", "Entities": links})
}
