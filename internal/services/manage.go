package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sprintpilot/sprintpilot/internal/domain"
	"github.com/sprintpilot/sprintpilot/internal/metrics"
)

const defaultSprintDays = 14

// trackerFor resolves the caller's active tracker config or fails with
// ErrConfigMissing.
func (s *Service) trackerFor(ctx context.Context, userID string) (TrackerClient, *domain.JiraConfig, error) {
	jc, err := s.store.GetActiveJiraConfig(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if jc == nil {
		return nil, nil, fmt.Errorf("%w: jira not configured", domain.ErrConfigMissing)
	}
	return s.tracker(*jc), jc, nil
}

type SprintRequest struct {
	Name         string `json:"name"`
	StartDate    string `json:"startDate"`
	DurationDays int    `json:"durationDays"`
	BoardID      int64  `json:"boardId"`
}

// CreateSprint creates a sprint on the user's board. When no duration is
// given the end date defaults to fourteen days after the start.
func (s *Service) CreateSprint(ctx context.Context, userID string, req SprintRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", &domain.ValidationError{Field: "name"}
	}
	start, err := metrics.ParseSprintDate(req.StartDate)
	if err != nil {
		return "", err
	}
	days := req.DurationDays
	if days <= 0 {
		days = defaultSprintDays
	}
	tc, jc, err := s.trackerFor(ctx, userID)
	if err != nil {
		return "", err
	}
	boardID := req.BoardID
	if boardID <= 0 {
		boardID = jc.SelectedBoard
	}
	spec := domain.SprintSpec{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   start.Add(time.Duration(days) * 24 * time.Hour).UTC().Format("2006-01-02T15:04:05.000Z"),
		BoardID:   boardID,
	}
	sprint, err := tc.CreateSprint(ctx, spec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created sprint '%s' (ID %d).", sprint.Name, sprint.ID), nil
}

func (s *Service) AddIssuesToSprint(ctx context.Context, userID string, sprintID int64, issueKeys []string) (string, error) {
	if len(issueKeys) == 0 {
		return "", &domain.ValidationError{Field: "issueKeys"}
	}
	tc, _, err := s.trackerFor(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := tc.AddIssuesToSprint(ctx, sprintID, issueKeys); err != nil {
		return "", err
	}
	return fmt.Sprintf("Added issues %s to sprint %d.", strings.Join(issueKeys, ", "), sprintID), nil
}

func (s *Service) CloseSprint(ctx context.Context, userID string, sprintID int64) (string, error) {
	tc, _, err := s.trackerFor(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := tc.CloseSprint(ctx, sprintID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Sprint %d closed.", sprintID), nil
}

// ListBacklog renders backlog items one per line as "KEY: summary (N pts)".
func (s *Service) ListBacklog(ctx context.Context, userID, projectKey string, maxResults int) (string, error) {
	if strings.TrimSpace(projectKey) == "" {
		return "", &domain.ValidationError{Field: "projectKey"}
	}
	if maxResults <= 0 {
		maxResults = s.cfg.BacklogMax
	}
	tc, _, err := s.trackerFor(ctx, userID)
	if err != nil {
		return "", err
	}
	items, err := tc.ListBacklogItems(ctx, projectKey, maxResults)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s: %s (%s pts)", it.Key, it.Summary, fmtPts(it.StoryPoints)))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Service) BoardSprints(ctx context.Context, userID string, boardID int64) ([]domain.Sprint, error) {
	tc, jc, err := s.trackerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if boardID <= 0 {
		boardID = jc.SelectedBoard
	}
	return tc.GetBoardSprints(ctx, boardID)
}

type TrackerStatus struct {
	IsOnline bool   `json:"is_online"`
	Message  string `json:"message"`
}

// CheckTracker verifies the stored credentials against the tracker.
func (s *Service) CheckTracker(ctx context.Context, userID string) (*TrackerStatus, error) {
	tc, _, err := s.trackerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := tc.Myself(ctx); err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("tracker health check failed")
		return &TrackerStatus{IsOnline: false, Message: "Jira connection failed. Check your domain and credentials."}, nil
	}
	return &TrackerStatus{IsOnline: true, Message: "Jira connection is working."}, nil
}

func (s *Service) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	tc, _, err := s.trackerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tc.ListProjects(ctx)
}

func (s *Service) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	tc, _, err := s.trackerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tc.ListBoards(ctx)
}

func (s *Service) SaveJiraConfig(ctx context.Context, c domain.JiraConfig) error {
	switch {
	case strings.TrimSpace(c.UserID) == "":
		return &domain.ValidationError{Field: "userId"}
	case strings.TrimSpace(c.Domain) == "":
		return &domain.ValidationError{Field: "domain"}
	case strings.TrimSpace(c.Email) == "":
		return &domain.ValidationError{Field: "email"}
	case strings.TrimSpace(c.APIToken) == "":
		return &domain.ValidationError{Field: "apiToken"}
	}
	return s.store.UpsertJiraConfig(ctx, c)
}

// JiraConfigs lists the user's active configs with tokens masked.
func (s *Service) JiraConfigs(ctx context.Context, userID string) ([]domain.JiraConfig, error) {
	configs, err := s.store.ListJiraConfigs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		configs[i].APIToken = "********"
	}
	return configs, nil
}

func (s *Service) DeleteJiraConfig(ctx context.Context, userID string) error {
	found, err := s.store.DeleteJiraConfigs(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no active jira config", domain.ErrNotFound)
	}
	return nil
}

func (s *Service) SaveAIConfig(ctx context.Context, c domain.AIConfig) error {
	c.Engine = normalizeEngine(c.Engine)
	switch {
	case strings.TrimSpace(c.UserID) == "":
		return &domain.ValidationError{Field: "userId"}
	case c.Engine == "":
		return &domain.ValidationError{Field: "aiEngine"}
	case strings.TrimSpace(c.Credentials) == "":
		return &domain.ValidationError{Field: "aiCredentials"}
	}
	return s.store.UpsertAIConfig(ctx, c)
}

// RecordSnapshots walks every active config with a selected board and stores
// one timeline snapshot per active sprint. Per-target failures are logged
// and skipped so one broken config cannot stall the sweep.
func (s *Service) RecordSnapshots(ctx context.Context) error {
	targets, err := s.store.ListSnapshotTargets(ctx)
	if err != nil {
		return err
	}
	for _, jc := range targets {
		tc := s.tracker(jc)
		sprint, err := tc.GetActiveSprint(ctx, jc.SelectedBoard)
		if err != nil {
			s.log.Warn().Err(err).Str("user", jc.UserID).Int64("board", jc.SelectedBoard).
				Msg("snapshot: active sprint lookup failed")
			continue
		}
		if sprint == nil {
			continue
		}
		issues, err := tc.GetSprintIssues(ctx, sprint.ID)
		if err != nil {
			s.log.Warn().Err(err).Int64("sprint", sprint.ID).Msg("snapshot: issues fetch failed")
			continue
		}
		tl, err := metrics.ProgressAndDeviation(sprint.StartDate, sprint.EndDate, issues, s.now())
		if err != nil {
			s.log.Warn().Err(err).Int64("sprint", sprint.ID).Msg("snapshot: metrics failed")
			continue
		}
		snap := domain.SprintSnapshot{
			BoardID:   jc.SelectedBoard,
			SprintID:  sprint.ID,
			Progress:  tl.Progress,
			Deviation: tl.Deviation,
			TakenAt:   s.now().UTC(),
		}
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			s.log.Error().Err(err).Int64("sprint", sprint.ID).Msg("snapshot: insert failed")
		}
	}
	return nil
}
