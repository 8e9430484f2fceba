package server

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// PackagesRequest replaces the locked set.
type PackagesRequest struct {
	Packages []string `json:"packages"`
}

// ProtectRequest toggles settings protection.
type ProtectRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PackageRequest names one application.
type PackageRequest struct {
	Package string `json:"package" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) status(c *gin.Context) {
	status, err := s.engine.Status(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getLocked(c *gin.Context) {
	locked, err := s.store.LockedSet(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read locked apps", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": locked})
}

func (s *Server) putLocked(c *gin.Context) {
	var req PackagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := normalizePackages(req.Packages)
	if err := s.store.SetLockedSet(c.Request.Context(), ids); err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to store locked apps", err)
		return
	}
	s.logger.Info("locked apps updated", zap.Int("count", len(ids)))
	c.JSON(http.StatusOK, gin.H{"packages": ids})
}

func (s *Server) getProtect(c *gin.Context) {
	enabled, err := s.store.ProtectSelf(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read settings protection", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (s *Server) putProtect(c *gin.Context) {
	var req ProtectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetProtectSelf(c.Request.Context(), *req.Enabled); err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to store settings protection", err)
		return
	}
	s.logger.Info("settings protection changed", zap.Bool("enabled", *req.Enabled))
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func (s *Server) unlock(c *gin.Context) {
	var req PackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := domain.AppID(strings.TrimSpace(req.Package))
	if err := s.engine.UnlockSucceeded(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": id, "allowed": true})
}

func (s *Server) screenOff(c *gin.Context) {
	s.engine.ScreenOff()
	c.Status(http.StatusNoContent)
}

func (s *Server) foreground(c *gin.Context) {
	var req PackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.HandleForeground(c.Request.Context(), domain.ForegroundEvent{
		Package: domain.AppID(strings.TrimSpace(req.Package)),
		At:      time.Now(),
	})
	c.Status(http.StatusAccepted)
}

func (s *Server) fail(c *gin.Context, code int, msg string, err error) {
	s.logger.Warn(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(code, gin.H{"error": msg})
}

// normalizePackages trims, drops empties and de-duplicates.
func normalizePackages(packages []string) []domain.AppID {
	seen := make(map[string]struct{}, len(packages))
	ids := make([]domain.AppID, 0, len(packages))
	for _, p := range packages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ids = append(ids, domain.AppID(p))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
