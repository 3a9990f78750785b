package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ultrashots/models"
	"ultrashots/pkg/accounts"
	"ultrashots/pkg/exceptions"
)

type tokenRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// issueToken exchanges credentials for an access and refresh token pair.
func (a *App) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	user, err := a.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.metrics.LoginAttempt("failed")
		exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "These credentials do not match our records."))
		return
	}
	a.metrics.LoginAttempt("success")
	a.throttle.Clear(c.ClientIP())

	pair, err := a.accounts.IssueTokens(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":         pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
		"user":          userProps(user),
	})
}

// refreshToken rotates a refresh token. The presented token stops working.
func (a *App) refreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	pair, err := a.accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if errors.Is(err, accounts.ErrInvalidToken) {
		exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "invalid refresh token"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (a *App) revokeToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	// unknown tokens are treated as already revoked
	if err := a.accounts.Revoke(c.Request.Context(), req.RefreshToken); err != nil && !errors.Is(err, accounts.ErrInvalidToken) {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) apiUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": userProps(a.currentUser(c))})
}

func (a *App) apiCustomers(c *gin.Context) {
	res, err := paginate[models.Customer](c, a.customersQuery(c), "name, id")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) apiProjects(c *gin.Context) {
	res, err := paginate[models.Project](c, a.projectsQuery(c), "created_at desc, id desc", "Customer")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) apiStats(c *gin.Context) {
	s, err := a.stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s})
}
