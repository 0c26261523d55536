package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const adminKey = "admin_id"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		respondBadRequest(c, "username and password are required")
		return
	}
	if len(s.adminHash) == 0 || bcrypt.CompareHashAndPassword(s.adminHash, []byte(req.Password)) != nil {
		s.logger.Warn("Admin login rejected", "username", username)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid credentials"})
		return
	}

	session, _ := s.store.Get(c.Request, sessionName)
	session.Values[adminKey] = username
	if err := session.Save(c.Request, c.Writer); err != nil {
		respondError(c, err)
		return
	}
	s.logger.Info("Admin logged in", "username", username)
	c.JSON(http.StatusOK, gin.H{"success": true, "adminId": username})
}

func (s *Server) handleLogout(c *gin.Context) {
	session, _ := s.store.Get(c.Request, sessionName)
	delete(session.Values, adminKey)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request, c.Writer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// requireAdmin rejects requests without an admin session and exposes the
// admin id to handlers.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := s.store.Get(c.Request, sessionName)
		if err != nil {
			s.logger.Debug("Discarding unreadable session", "error", err)
		}
		adminID, _ := session.Values[adminKey].(string)
		if adminID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Admin login required"})
			return
		}
		c.Set(adminKey, adminID)
		c.Next()
	}
}

func adminID(c *gin.Context) string {
	return c.GetString(adminKey)
}
