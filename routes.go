package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ultrashots/pkg/broadcast"
	"ultrashots/pkg/database"
	"ultrashots/pkg/exceptions"
)

// routes registers the web, api, channels and health groups.
func (a *App) routes(r *gin.Engine) {
	web := r.Group("", handlers(prioritize(a.webMiddleware()))...)

	guest := web.Group("", a.guest())
	guest.GET("/login", a.showLogin)
	guest.POST("/login", a.throttleLogin(), a.login)

	web.POST("/newsletter/subscribe", a.subscribe)
	web.GET("/newsletter/unsubscribe/:token", a.unsubscribe)

	auth := web.Group("", a.authenticate())
	auth.POST("/logout", a.logout)
	auth.GET("/", a.dashboard)

	auth.GET("/customers", a.can("customers.view"), a.listCustomers)
	auth.POST("/customers", a.can("customers.create"), a.createCustomer)
	auth.GET("/customers/:id", a.can("customers.view"), a.showCustomer)
	auth.PUT("/customers/:id", a.can("customers.update"), a.updateCustomer)
	auth.DELETE("/customers/:id", a.can("customers.delete"), a.deleteCustomer)
	auth.POST("/customers/:id/logo", a.can("logos.create"), a.uploadCustomerLogo)

	auth.GET("/projects", a.can("projects.view"), a.listProjects)
	auth.POST("/projects", a.can("projects.create"), a.createProject)
	auth.GET("/projects/:id", a.can("projects.view"), a.showProject)
	auth.PUT("/projects/:id", a.can("projects.update"), a.updateProject)
	auth.DELETE("/projects/:id", a.can("projects.delete"), a.deleteProject)

	auth.GET("/subscribers", a.can("subscribers.view"), a.listSubscribers)
	auth.DELETE("/subscribers/:id", a.can("subscribers.delete"), a.deleteSubscriber)

	auth.GET("/users", a.can("users.view"), a.listUsers)
	auth.POST("/users", a.can("users.create"), a.createUser)
	auth.PUT("/users/:id/role", a.can("users.update"), a.updateUserRole)

	auth.GET("/logos", a.can("logos.view"), a.listLogos)
	auth.GET("/logos/:id/download", a.can("logos.view"), a.downloadLogo)

	// channels
	auth.GET("/broadcasting", broadcast.Handler(a.hub, a.authorizeChannel, a.log))

	api := r.Group("/api", handlers(prioritize(a.apiMiddleware()))...)
	// preflights are answered by the cors middleware; other OPTIONS requests get an empty 204
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.POST("/token", a.throttleLogin(), a.issueToken)
	api.POST("/token/refresh", a.refreshToken)
	api.POST("/token/revoke", a.revokeToken)
	authed := api.Group("", a.apiAuthenticate())
	authed.GET("/user", a.apiUser)
	authed.GET("/customers", a.can("customers.view"), a.apiCustomers)
	authed.GET("/projects", a.can("projects.view"), a.apiProjects)
	authed.GET("/stats", a.apiStats)

	// health
	r.GET("/up", a.health)
	r.GET("/metrics", a.metrics.Handler())

	r.NoRoute(append(handlers(prioritize(a.notFoundMiddleware())), a.notFound)...)
}

func (a *App) notFound(c *gin.Context) {
	exceptions.Abort(c, http.StatusNotFound, exceptions.New(http.StatusNotFound, "Not Found"))
}

// health reports whether the database answers.
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := database.Ping(ctx, a.db); err != nil {
		a.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "up"})
}
