/* Copyright (c) 2025 Sprintpilot contributors
 * SPDX-License-Identifier: BSD-3-Clause */

// Package services holds the orchestration layer: intent dispatch, report
// assembly and the glue between the tracker, the AI backends and storage.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/ai"
	"github.com/sprintpilot/sprintpilot/internal/config"
	"github.com/sprintpilot/sprintpilot/internal/domain"
	"github.com/sprintpilot/sprintpilot/internal/metrics"
)

// TrackerClient is the read/write surface of the issue tracker the service
// depends on. The concrete client is constructed per user config via
// TrackerFactory so tests can substitute fakes.
type TrackerClient interface {
	GetActiveSprint(ctx context.Context, boardID int64) (*domain.Sprint, error)
	GetSprintDetails(ctx context.Context, sprintID int64) (*domain.Sprint, error)
	GetSprintIssues(ctx context.Context, sprintID int64) ([]domain.Issue, error)
	GetBoardSprints(ctx context.Context, boardID int64) ([]domain.Sprint, error)
	ListBacklogItems(ctx context.Context, projectKey string, maxResults int) ([]domain.Issue, error)
	CreateSprint(ctx context.Context, spec domain.SprintSpec) (*domain.Sprint, error)
	AddIssuesToSprint(ctx context.Context, sprintID int64, issueKeys []string) error
	CloseSprint(ctx context.Context, sprintID int64) error
	ListProjects(ctx context.Context) ([]domain.Project, error)
	ListBoards(ctx context.Context) ([]domain.Board, error)
	Myself(ctx context.Context) error
}

// TrackerFactory builds a tracker client from a stored user config.
type TrackerFactory func(cfg domain.JiraConfig) TrackerClient

// AIFactory resolves a chat backend for a named engine.
type AIFactory interface {
	Client(engine, credentials string) (ai.Client, error)
}

// Store is the persistence surface used by the service.
type Store interface {
	GetActiveJiraConfig(ctx context.Context, userID string) (*domain.JiraConfig, error)
	ListJiraConfigs(ctx context.Context, userID string) ([]domain.JiraConfig, error)
	UpsertJiraConfig(ctx context.Context, c domain.JiraConfig) error
	DeleteJiraConfigs(ctx context.Context, userID string) (bool, error)
	GetAIConfig(ctx context.Context, userID, engine string) (*domain.AIConfig, error)
	UpsertAIConfig(ctx context.Context, c domain.AIConfig) error
	LoadConversation(ctx context.Context, userID, projectKey string, boardID int64, limit int) ([]domain.Message, error)
	AppendMessages(ctx context.Context, userID, projectKey string, boardID int64, msgs []domain.Message) error
	InsertSnapshot(ctx context.Context, s domain.SprintSnapshot) error
	ListSnapshots(ctx context.Context, boardID, sprintID int64, limit int) ([]domain.SprintSnapshot, error)
	ListSnapshotTargets(ctx context.Context) ([]domain.JiraConfig, error)
}

type Service struct {
	cfg     config.Config
	log     zerolog.Logger
	store   Store
	tracker TrackerFactory
	ai      AIFactory
	now     func() time.Time
}

func New(cfg config.Config, log zerolog.Logger, store Store, tracker TrackerFactory, aif AIFactory) *Service {
	return &Service{
		cfg:     cfg,
		log:     log,
		store:   store,
		tracker: tracker,
		ai:      aif,
		now:     time.Now,
	}
}

// SprintDetailsReport is the structured sprint-status payload. Percentages
// here carry two decimals; the chat rendering of the same counts uses one.
type SprintDetailsReport struct {
	SprintName       string                  `json:"sprintName"`
	SprintGoal       string                  `json:"sprintGoal,omitempty"`
	StartDate        string                  `json:"startDate,omitempty"`
	EndDate          string                  `json:"endDate,omitempty"`
	StoryProgress    metrics.ProgressReport  `json:"storyProgress"`
	IndividualStatus []metrics.AssigneeGroup `json:"individualStatus"`
	BugStatus        []metrics.BugLine       `json:"bugStatus"`
	Velocity         metrics.VelocityReport  `json:"velocity"`
	TimeRemaining    *metrics.TimeRemaining  `json:"timeRemaining,omitempty"`
}

// SprintDetails builds the full structured report for the board's active
// sprint. Unlike the chat path it fails with typed errors so the transport
// layer can map them to status codes.
func (s *Service) SprintDetails(ctx context.Context, userID string) (*SprintDetailsReport, error) {
	jc, err := s.store.GetActiveJiraConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	if jc == nil {
		return nil, fmt.Errorf("%w: jira not configured", domain.ErrConfigMissing)
	}
	tc := s.tracker(*jc)
	sprint, err := tc.GetActiveSprint(ctx, jc.SelectedBoard)
	if err != nil {
		return nil, err
	}
	if sprint == nil {
		return nil, fmt.Errorf("%w: no active sprint", domain.ErrNotFound)
	}
	issues, err := tc.GetSprintIssues(ctx, sprint.ID)
	if err != nil {
		return nil, err
	}
	report := &SprintDetailsReport{
		SprintName:       sprint.Name,
		SprintGoal:       sprint.Goal,
		StartDate:        sprint.StartDate,
		EndDate:          sprint.EndDate,
		StoryProgress:    metrics.StoryProgress(issues),
		IndividualStatus: metrics.IndividualStatus(issues),
		BugStatus:        metrics.BugStatus(issues),
		Velocity:         metrics.Velocity(issues),
	}
	// unstarted sprints have no dates; the report is still useful without
	// the time block
	if tr, err := metrics.RemainingTime(*sprint, s.now()); err == nil {
		report.TimeRemaining = &tr
	}
	return report, nil
}

// SprintTimeline computes coarse progress versus the calendar for one
// sprint. Malformed or missing sprint dates surface as a ParseError.
func (s *Service) SprintTimeline(ctx context.Context, userID string, sprintID int64) (*metrics.Timeline, error) {
	jc, err := s.store.GetActiveJiraConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	if jc == nil {
		return nil, fmt.Errorf("%w: jira not configured", domain.ErrConfigMissing)
	}
	tc := s.tracker(*jc)
	sprint, err := tc.GetSprintDetails(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	issues, err := tc.GetSprintIssues(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	tl, err := metrics.ProgressAndDeviation(sprint.StartDate, sprint.EndDate, issues, s.now())
	if err != nil {
		return nil, err
	}
	return &tl, nil
}

// Snapshots returns stored timeline snapshots for a sprint, newest first.
func (s *Service) Snapshots(ctx context.Context, boardID, sprintID int64, limit int) ([]domain.SprintSnapshot, error) {
	return s.store.ListSnapshots(ctx, boardID, sprintID, limit)
}

// normalizeEngine keeps ai_configs keyed consistently regardless of how the
// client spells the engine name.
func normalizeEngine(engine string) string {
	return strings.ToLower(strings.TrimSpace(engine))
}
