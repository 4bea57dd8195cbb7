/* Copyright (c) 2025 Sprintpilot contributors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/config"
	"github.com/sprintpilot/sprintpilot/internal/domain"
	"github.com/sprintpilot/sprintpilot/internal/metrics"
	"github.com/sprintpilot/sprintpilot/internal/services"
)

type service interface {
	HandleChat(ctx context.Context, req services.ChatRequest) (*services.ChatResponse, error)
	SprintDetails(ctx context.Context, userID string) (*services.SprintDetailsReport, error)
	SprintTimeline(ctx context.Context, userID string, sprintID int64) (*metrics.Timeline, error)
	Snapshots(ctx context.Context, boardID, sprintID int64, limit int) ([]domain.SprintSnapshot, error)
	CreateSprint(ctx context.Context, userID string, req services.SprintRequest) (string, error)
	AddIssuesToSprint(ctx context.Context, userID string, sprintID int64, issueKeys []string) (string, error)
	CloseSprint(ctx context.Context, userID string, sprintID int64) (string, error)
	ListBacklog(ctx context.Context, userID, projectKey string, maxResults int) (string, error)
	BoardSprints(ctx context.Context, userID string, boardID int64) ([]domain.Sprint, error)
	CheckTracker(ctx context.Context, userID string) (*services.TrackerStatus, error)
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	ListBoards(ctx context.Context, userID string) ([]domain.Board, error)
	SaveJiraConfig(ctx context.Context, c domain.JiraConfig) error
	JiraConfigs(ctx context.Context, userID string) ([]domain.JiraConfig, error)
	DeleteJiraConfig(ctx context.Context, userID string) error
	SaveAIConfig(ctx context.Context, c domain.AIConfig) error
}

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc}
}

// respondErr maps the error taxonomy onto status codes. Unanticipated
// errors become a generic 500 with detail kept in logs only.
func (h *Handlers) respondErr(c *gin.Context, err error) {
	var ve *domain.ValidationError
	var pe *domain.ParseError
	var ae *domain.AuthError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, domain.ErrConfigMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Jira not configured for this user"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No active sprint", "message": err.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not compute metrics", "message": pe.Error()})
	case errors.As(err, &ae):
		c.JSON(http.StatusBadGateway, gin.H{"error": "tracker authentication failed"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func userID(c *gin.Context) string { return c.GetString("userID") }

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Chat(c *gin.Context) {
	var body struct {
		Engine     string `json:"aiEngine"`
		ProjectKey string `json:"projectKey"`
		BoardID    int64  `json:"boardId"`
		Message    string `json:"userMessage"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	resp, err := h.svc.HandleChat(c.Request.Context(), services.ChatRequest{
		UserID:     userID(c),
		Engine:     body.Engine,
		ProjectKey: body.ProjectKey,
		BoardID:    body.BoardID,
		Message:    body.Message,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) SprintDetails(c *gin.Context) {
	rep, err := h.svc.SprintDetails(c.Request.Context(), userID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handlers) SprintTimeline(c *gin.Context) {
	sprintID, err := strconv.ParseInt(c.Query("sprintId"), 10, 64)
	if err != nil || sprintID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sprintId is required"})
		return
	}
	tl, err := h.svc.SprintTimeline(c.Request.Context(), userID(c), sprintID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tl)
}

func (h *Handlers) TimelineHistory(c *gin.Context) {
	boardID, _ := strconv.ParseInt(c.Query("boardId"), 10, 64)
	sprintID, _ := strconv.ParseInt(c.Query("sprintId"), 10, 64)
	if boardID <= 0 || sprintID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boardId and sprintId are required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	snaps, err := h.svc.Snapshots(c.Request.Context(), boardID, sprintID, limit)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

func (h *Handlers) CreateSprint(c *gin.Context) {
	var body services.SprintRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	msg, err := h.svc.CreateSprint(c.Request.Context(), userID(c), body)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handlers) AddIssues(c *gin.Context) {
	sprintID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sprintID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sprint id"})
		return
	}
	var body struct {
		IssueKeys []string `json:"issueKeys"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	msg, err := h.svc.AddIssuesToSprint(c.Request.Context(), userID(c), sprintID, body.IssueKeys)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handlers) CloseSprint(c *gin.Context) {
	sprintID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sprintID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sprint id"})
		return
	}
	msg, err := h.svc.CloseSprint(c.Request.Context(), userID(c), sprintID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handlers) Backlog(c *gin.Context) {
	maxResults, _ := strconv.Atoi(c.DefaultQuery("maxResults", "0"))
	out, err := h.svc.ListBacklog(c.Request.Context(), userID(c), c.Param("projectKey"), maxResults)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *Handlers) BoardSprints(c *gin.Context) {
	boardID, _ := strconv.ParseInt(c.Query("boardId"), 10, 64)
	sprints, err := h.svc.BoardSprints(c.Request.Context(), userID(c), boardID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sprints": sprints})
}

func (h *Handlers) JiraStatus(c *gin.Context) {
	st, err := h.svc.CheckTracker(c.Request.Context(), userID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handlers) Projects(c *gin.Context) {
	projects, err := h.svc.ListProjects(c.Request.Context(), userID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *Handlers) Boards(c *gin.Context) {
	boards, err := h.svc.ListBoards(c.Request.Context(), userID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boards": boards})
}

func (h *Handlers) SaveConfig(c *gin.Context) {
	var body struct {
		Domain          string `json:"domain"`
		Email           string `json:"email"`
		APIToken        string `json:"apiToken"`
		SelectedProject string `json:"selectedProject"`
		SelectedBoard   int64  `json:"selectedBoard"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	err := h.svc.SaveJiraConfig(c.Request.Context(), domain.JiraConfig{
		UserID:          userID(c),
		Domain:          body.Domain,
		Email:           body.Email,
		APIToken:        body.APIToken,
		SelectedProject: body.SelectedProject,
		SelectedBoard:   body.SelectedBoard,
		Active:          true,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration saved"})
}

func (h *Handlers) GetConfigs(c *gin.Context) {
	configs, err := h.svc.JiraConfigs(c.Request.Context(), userID(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (h *Handlers) DeleteConfig(c *gin.Context) {
	if err := h.svc.DeleteJiraConfig(c.Request.Context(), userID(c)); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration removed"})
}

func (h *Handlers) SaveAIConfig(c *gin.Context) {
	var body struct {
		Engine      string `json:"aiEngine"`
		Credentials string `json:"aiCredentials"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	err := h.svc.SaveAIConfig(c.Request.Context(), domain.AIConfig{
		UserID:      userID(c),
		Engine:      body.Engine,
		Credentials: body.Credentials,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "AI configuration saved"})
}
