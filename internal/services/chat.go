/* Copyright (c) 2025 Sprintpilot contributors
 * SPDX-License-Identifier: BSD-3-Clause */

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sprintpilot/sprintpilot/internal/domain"
	"github.com/sprintpilot/sprintpilot/internal/intent"
	"github.com/sprintpilot/sprintpilot/internal/metrics"
)

// Soft-failure replies. Structured-intent handling never surfaces raw
// errors to the user; each failure resolves to one of these texts.
const (
	MsgTrackerNotConfigured = "Jira isn't configured for your account yet. Add your Jira connection in settings and try again."
	MsgNoActiveSprint       = "There's no active sprint on this board right now."
	MsgTrackerUnavailable   = "Sorry, I couldn't reach your issue tracker. Please try again in a bit."
	MsgAIUnavailable        = "Sorry, I couldn't reach the AI service right now. Please try again later."
	MsgMetricsUnavailable   = "I couldn't compute sprint metrics because the sprint dates look malformed."
)

type ChatRequest struct {
	UserID     string
	Engine     string
	ProjectKey string
	BoardID    int64
	Message    string
}

type ChatResponse struct {
	Response   string `json:"response"`
	ProjectKey string `json:"projectKey"`
	BoardID    int64  `json:"boardId"`
}

// HandleChat is the orchestration state machine for one incoming message.
// Structured intents answer from tracker data directly and never touch the
// AI backend or the conversation log; everything else goes through the
// generative path with a bounded history window.
func (s *Service) HandleChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := validateChat(req); err != nil {
		return nil, err
	}

	m := intent.Route(req.Message)

	resp := &ChatResponse{ProjectKey: req.ProjectKey, BoardID: req.BoardID}
	switch m.Kind {
	case intent.SprintStatus, intent.IndividualStatus, intent.MemberStatus:
		text, err := s.structuredReply(ctx, req, m)
		if err != nil {
			return nil, err
		}
		resp.Response = text
		return resp, nil
	default:
		text, err := s.generativeReply(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Response = text
		return resp, nil
	}
}

func validateChat(req ChatRequest) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return &domain.ValidationError{Field: "userId"}
	case strings.TrimSpace(req.Engine) == "":
		return &domain.ValidationError{Field: "aiEngine"}
	case strings.TrimSpace(req.ProjectKey) == "":
		return &domain.ValidationError{Field: "projectKey"}
	case req.BoardID <= 0:
		return &domain.ValidationError{Field: "boardId"}
	case strings.TrimSpace(req.Message) == "":
		return &domain.ValidationError{Field: "userMessage"}
	}
	return nil
}

// structuredReply resolves a metrics intent to a deterministic text report.
// Every tracker failure maps to a conversational reply, never an error.
func (s *Service) structuredReply(ctx context.Context, req ChatRequest, m intent.Match) (string, error) {
	jc, err := s.store.GetActiveJiraConfig(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	if jc == nil {
		return MsgTrackerNotConfigured, nil
	}
	tc := s.tracker(*jc)
	sprint, err := tc.GetActiveSprint(ctx, req.BoardID)
	if err != nil {
		s.log.Error().Err(err).Str("user", req.UserID).Int64("board", req.BoardID).
			Msg("active sprint lookup failed")
		return MsgTrackerUnavailable, nil
	}
	if sprint == nil {
		return MsgNoActiveSprint, nil
	}
	issues, err := tc.GetSprintIssues(ctx, sprint.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("sprint", sprint.ID).Msg("sprint issues fetch failed")
		return MsgTrackerUnavailable, nil
	}

	switch m.Kind {
	case intent.SprintStatus:
		return s.formatSprintStatus(*sprint, issues), nil
	case intent.IndividualStatus:
		return formatIndividualStatus(*sprint, metrics.IndividualStatus(issues)), nil
	default:
		return formatMemberStatus(m.Names, metrics.IndividualStatus(issues)), nil
	}
}

// generativeReply is the AI fallback path: bounded history window, fixed
// system prompt, then both turns appended to the conversation log.
func (s *Service) generativeReply(ctx context.Context, req ChatRequest) (string, error) {
	engine := normalizeEngine(req.Engine)
	ac, err := s.store.GetAIConfig(ctx, req.UserID, engine)
	if err != nil {
		return "", err
	}
	if ac == nil {
		return fmt.Sprintf("No %s configuration found. Add your AI credentials in settings first.", engine), nil
	}
	client, err := s.ai.Client(ac.Engine, ac.Credentials)
	if err != nil {
		s.log.Warn().Err(err).Str("engine", engine).Msg("ai client init failed")
		return fmt.Sprintf("Your %s configuration looks incomplete. Check your AI credentials in settings.", engine), nil
	}

	history, err := s.store.LoadConversation(ctx, req.UserID, req.ProjectKey, req.BoardID, s.cfg.ChatHistoryLimit)
	if err != nil {
		return "", err
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{
		Role: domain.RoleSystem,
		Content: fmt.Sprintf(
			"You are a Scrum Master assistant for project %s (board %d). "+
				"Use Jira to create sprints, fetch sprint status, add issues, "+
				"close sprints, and list backlog items.",
			req.ProjectKey, req.BoardID),
	})
	for _, h := range history {
		msgs = append(msgs, domain.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: req.Message})

	answer, err := client.Chat(ctx, msgs)
	if err != nil {
		s.log.Error().Err(err).Str("engine", engine).Msg("ai chat failed")
		return MsgAIUnavailable, nil
	}

	now := s.now().UTC()
	err = s.store.AppendMessages(ctx, req.UserID, req.ProjectKey, req.BoardID, []domain.Message{
		{Role: domain.RoleUser, Content: req.Message, Timestamp: now},
		{Role: domain.RoleAssistant, Content: answer, Timestamp: now},
	})
	if err != nil {
		// losing one history pair is better than eating the reply
		s.log.Error().Err(err).Str("user", req.UserID).Msg("conversation append failed")
	}
	return answer, nil
}
