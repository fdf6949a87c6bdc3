package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fileshare-gateway/internal/auth"
	"github.com/fileshare-gateway/internal/models"
)

func handleLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, user, err := authService.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}

		c.JSON(http.StatusOK, models.LoginResponse{Token: token, User: user})
	}
}
