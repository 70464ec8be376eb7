package main

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haasonsaas/keywarden/pkg/duration"
	"github.com/haasonsaas/keywarden/pkg/keygen"
	"github.com/haasonsaas/keywarden/pkg/license"
)

func (s *Server) registerPublicRoutes(r *gin.Engine) {
	r.GET("/", s.handleIndex)
	r.GET("/download", s.handleDownload)
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	r.POST("/api/validate", s.handleValidate)
	r.POST("/api/logout", s.handleLogout)
	r.POST("/api/generate-key", s.requireAPIKey, s.handleGenerateKey)
}

func (s *Server) requireAPIKey(c *gin.Context) {
	key := c.GetHeader("X-API-Key")
	if key == "" || !secureCompare(key, s.cfg.Auth.APIKey) {
		respondError(c, http.StatusUnauthorized, "invalid api key", s.logger)
		return
	}
	c.Next()
}

func (s *Server) handleGenerateKey(c *gin.Context) {
	var req struct {
		DurationType string `json:"duration_type"`
		IsWarnet     bool   `json:"is_warnet"`
		Note         string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	class, err := duration.Parse(req.DurationType)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	rec, err := s.engine.Create(class, req.IsWarnet, req.Note, s.keygen)
	if err != nil {
		if errors.Is(err, keygen.ErrExhausted) {
			respondError(c, http.StatusInternalServerError, "key generation exhausted", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to issue license", s.logger)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"license_key":   rec.Key,
		"duration_type": rec.DurationClass,
		"is_warnet":     rec.SharedTerminal,
	})
}

func (s *Server) handleValidate(c *gin.Context) {
	var req struct {
		LicenseKey string `json:"license_key"`
		HWID       string `json:"hwid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if req.LicenseKey == "" || req.HWID == "" {
		respondError(c, http.StatusBadRequest, "license_key and hwid are required", s.logger)
		return
	}

	decision, err := s.engine.Validate(req.LicenseKey, req.HWID)
	if err != nil {
		var ve *license.ValidationError
		if errors.As(err, &ve) {
			status := http.StatusForbidden
			if ve.Reason == license.ReasonUnknownKey {
				status = http.StatusNotFound
			}
			logger := requestLogger(c, s.logger)
			logger.Info().
				Str("reason", ve.Reason).
				Msg("validation denied")
			c.JSON(status, gin.H{
				"success": false,
				"reason":  ve.Reason,
				"message": ve.Message,
			})
			return
		}
		respondError(c, http.StatusInternalServerError, "validation failed", s.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"duration":   decision.DurationClass,
		"expires_at": renderExpiry(decision.ExpiresAt),
		"mode":       modeName(decision.SharedTerminal),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	var req struct {
		LicenseKey string `json:"license_key"`
		HWID       string `json:"hwid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}

	// Idempotent: a stale session must never block client shutdown.
	if err := s.engine.Logout(req.LicenseKey, req.HWID); err != nil {
		logger := requestLogger(c, s.logger)
		logger.Error().Err(err).Msg("logout persistence failed")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":  "keywarden",
		"version":  Version,
		"download": "/download",
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	path := filepath.Join(s.cfg.Download.Dir, s.cfg.Download.File)
	if _, err := os.Stat(path); err != nil {
		respondError(c, http.StatusNotFound, "client download unavailable", s.logger)
		return
	}
	c.FileAttachment(path, s.cfg.Download.File)
}

func renderExpiry(t *time.Time) string {
	if t == nil {
		return "Never"
	}
	return t.UTC().Format(time.RFC3339)
}

func modeName(shared bool) string {
	if shared {
		return "shared"
	}
	return "permanent"
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
