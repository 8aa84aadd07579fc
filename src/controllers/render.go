package controllers

import (
	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/middleware"
	"github.com/gin-gonic/gin"
)

// render executes a page template with the session user and pending flash.
func render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["User"] = middleware.CurrentUser(c)
	if _, ok := data["Flash"]; !ok {
		data["Flash"] = middleware.PopFlash(c)
	}
	c.HTML(status, name, data)
}

// failPage answers a page request that could not be served.
func failPage(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= 500 {
		logging.Error().Err(err).Str("path", c.Request.URL.Path).Msg("page failed")
	}
	_ = c.Error(err)
	c.String(status, err.Error())
}
