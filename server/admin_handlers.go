package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haasonsaas/keywarden/pkg/license"
)

func (s *Server) registerAdminRoutes(r *gin.Engine) {
	admin := r.Group("/admin", s.requireAdmin)
	admin.GET("/licenses", s.handleListLicenses)
	admin.GET("/licenses/:key", s.handleGetLicense)
	admin.GET("/licenses/:key/logs", s.handleLicenseLogs)
	admin.POST("/licenses/:key/note", s.handleSetNote)
	admin.POST("/licenses/:key/reset-hwid", s.handleResetHWID)
	admin.POST("/licenses/:key/ban", s.handleBan)
	admin.POST("/licenses/:key/unban", s.handleUnban)
	admin.POST("/licenses/:key/deactivate", s.handleDeactivate)
	admin.POST("/licenses/:key/reactivate", s.handleReactivate)
	admin.POST("/licenses/:key/extend", s.handleExtend)
	admin.POST("/licenses/:key/shared-mode", s.handleSharedMode)
	admin.POST("/licenses/:key/clear-session", s.handleClearSession)
	admin.DELETE("/licenses/:key", s.handleDeleteLicense)
	admin.GET("/denylist", s.handleListDenylist)
	admin.DELETE("/denylist/:hash", s.handleUnbanFingerprint)
}

func (s *Server) requireAdmin(c *gin.Context) {
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		respondError(c, http.StatusUnauthorized, "missing bearer token", s.logger)
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if !secureCompare(token, s.cfg.Auth.AdminToken) {
		respondError(c, http.StatusUnauthorized, "invalid bearer token", s.logger)
		return
	}
	c.Next()
}

// respondAdminErr maps engine errors onto the admin status taxonomy.
func (s *Server) respondAdminErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, license.ErrNotFound):
		respondError(c, http.StatusNotFound, "license not found", s.logger)
	case errors.Is(err, license.ErrAlreadyBanned):
		respondError(c, http.StatusConflict, err.Error(), s.logger)
	case errors.Is(err, license.ErrNotExtendable):
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
	default:
		respondError(c, http.StatusInternalServerError, "operation failed", s.logger)
	}
}

func licenseSummary(rec *license.Record) gin.H {
	return gin.H{
		"license_key":   rec.Key,
		"duration_type": rec.DurationClass,
		"is_active":     rec.Active,
		"is_banned":     rec.Banned,
		"ban_reason":    rec.BanReason,
		"is_warnet":     rec.SharedTerminal,
		"mode":          rec.Mode(),
		"bound_hwid":    rec.BoundFingerprint,
		"session_hwid":  rec.SessionFingerprint,
		"created_at":    rec.CreatedAt,
		"expires_at":    renderExpiry(rec.ExpiresAt),
		"last_used_at":  rec.LastUsedAt,
		"note":          rec.Note,
	}
}

// stateMatches implements the dashboard filters.
func stateMatches(rec *license.Record, state string) bool {
	switch state {
	case "", "all":
		return true
	case "active":
		return rec.Active && !rec.Banned
	case "inactive":
		return !rec.Active && !rec.Banned
	case "banned":
		return rec.Banned
	case "shared":
		return rec.SharedTerminal
	default:
		return false
	}
}

func (s *Server) handleListLicenses(c *gin.Context) {
	recs, err := s.engine.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list licenses", s.logger)
		return
	}

	state := c.Query("state")
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		if stateMatches(rec, state) {
			out = append(out, licenseSummary(rec))
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetLicense(c *gin.Context) {
	rec, err := s.engine.Get(c.Param("key"))
	if err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, licenseSummary(rec))
}

func (s *Server) handleLicenseLogs(c *gin.Context) {
	rec, err := s.engine.Get(c.Param("key"))
	if err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"license_key": rec.Key,
		"logs":        rec.AuditLog,
	})
}

func (s *Server) handleSetNote(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if err := s.engine.SetNote(c.Param("key"), req.Note); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleResetHWID(c *gin.Context) {
	if err := s.engine.ResetBinding(c.Param("key")); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBan(c *gin.Context) {
	var req struct {
		Reason  string `json:"reason"`
		BanHWID bool   `json:"ban_hwid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if err := s.engine.Ban(c.Param("key"), req.Reason, req.BanHWID); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnban(c *gin.Context) {
	if err := s.engine.Unban(c.Param("key")); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeactivate(c *gin.Context) {
	if err := s.engine.Deactivate(c.Param("key")); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReactivate(c *gin.Context) {
	if err := s.engine.Reactivate(c.Param("key")); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExtend(c *gin.Context) {
	var req struct {
		Days int `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if req.Days <= 0 {
		respondError(c, http.StatusBadRequest, "days must be positive", s.logger)
		return
	}

	expires, err := s.engine.Extend(c.Param("key"), req.Days)
	if err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": renderExpiry(expires)})
}

func (s *Server) handleSharedMode(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), s.logger)
		return
	}
	if err := s.engine.SetSharedTerminal(c.Param("key"), req.Enabled); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearSession(c *gin.Context) {
	if err := s.engine.ClearSession(c.Param("key")); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteLicense(c *gin.Context) {
	if err := s.engine.Remove(c.Param("key")); err != nil {
		s.respondAdminErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListDenylist(c *gin.Context) {
	bans, err := s.engine.ListBans()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list denylist", s.logger)
		return
	}
	out := make([]gin.H, 0, len(bans))
	for _, ban := range bans {
		out = append(out, gin.H{
			"hwid":        ban.Hash,
			"reason":      ban.Reason,
			"license_key": ban.LicenseKey,
			"banned_at":   ban.BannedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUnbanFingerprint(c *gin.Context) {
	if err := s.engine.UnbanFingerprint(c.Param("hash")); err != nil {
		if errors.Is(err, license.ErrNotFound) {
			respondError(c, http.StatusNotFound, "denylist entry not found", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, "operation failed", s.logger)
		return
	}
	c.Status(http.StatusNoContent)
}
