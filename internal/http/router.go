/* Copyright (c) 2025 Sprintpilot contributors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/config"
)

// TokenResolver maps a bearer token to a user id. Token issuance and
// rotation live outside this service.
type TokenResolver func(ctx context.Context, token string) (string, error)

func NewRouter(cfg config.Config, log zerolog.Logger, svc service, resolve TokenResolver) *gin.Engine {
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(func(c *gin.Context) {
		c.Next()
		log.Info().
			Str("m", c.Request.Method).
			Str("p", c.FullPath()).
			Int("s", c.Writer.Status()).
			Str("rid", c.Writer.Header().Get("X-Request-ID")).
			Msg("http")
	})

	h := NewHandlers(cfg, log, svc)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api", auth(resolve))
	api.POST("/chat", h.Chat)
	api.GET("/sprint-details/status", h.SprintDetails)

	sm := api.Group("/scrum-master")
	sm.GET("/sprint-timeline", h.SprintTimeline)
	sm.GET("/sprint-timeline/history", h.TimelineHistory)
	sm.GET("/jira/status", h.JiraStatus)
	sm.GET("/jira/projects", h.Projects)
	sm.GET("/jira/boards", h.Boards)
	sm.GET("/jira/sprints", h.BoardSprints)
	sm.POST("/config", h.SaveConfig)
	sm.PUT("/config", h.SaveConfig)
	sm.GET("/config", h.GetConfigs)
	sm.DELETE("/config", h.DeleteConfig)
	sm.POST("/ai-config", h.SaveAIConfig)

	api.POST("/sprints", h.CreateSprint)
	api.POST("/sprints/:id/issues", h.AddIssues)
	api.POST("/sprints/:id/close", h.CloseSprint)
	api.GET("/backlog/:projectKey", h.Backlog)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func auth(resolve TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is missing"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		id, err := resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is invalid"})
			return
		}
		c.Set("userID", id)
		c.Next()
	}
}
