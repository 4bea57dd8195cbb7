// Package metrics computes sprint reports from already-fetched issue lists.
// Every function is pure: no network access, and "now" is always a parameter.
package metrics

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sprintpilot/sprintpilot/internal/domain"
)

type Bucket struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ProgressReport buckets story-type issues by status. Percentages are over
// the story subset only and carry two decimals.
type ProgressReport struct {
	ToDo       Bucket `json:"toDo"`
	InProgress Bucket `json:"inProgress"`
	Done       Bucket `json:"done"`
	Total      int    `json:"total"`
}

type VelocityReport struct {
	PlannedPoints   float64 `json:"plannedPoints"`
	CompletedPoints float64 `json:"completedPoints"`
	CompletionRate  float64 `json:"completionRate"`
}

// TimeRemaining is calendar progress through the sprint window. Elapsed and
// remaining are clamped so neither goes negative when now falls outside the
// window.
type TimeRemaining struct {
	TotalDays     int `json:"totalDays"`
	ElapsedDays   int `json:"elapsedDays"`
	RemainingDays int `json:"remainingDays"`
}

type IssueLine struct {
	TicketID string `json:"ticketId"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
}

// AssigneeGroup preserves tracker order: groups appear in first-seen order
// and issues within a group in returned order.
type AssigneeGroup struct {
	Assignee string      `json:"assignee"`
	Issues   []IssueLine `json:"issues"`
}

type BugLine struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Assignee string `json:"assignee"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// Timeline is the coarse progress/deviation metric used by the timeline view.
type Timeline struct {
	Progress  int    `json:"progress"`
	Deviation int    `json:"deviation"`
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
}

// storyDone is the status vocabulary for story progress and velocity.
// The timeline metric deliberately uses a different one (timelineDone);
// the two consumers evolved independently and must not be unified.
func storyDone(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "done", "completed":
		return true
	}
	return false
}

func storyInProgress(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "in progress", "inprogress":
		return true
	}
	return false
}

// timelineDone is the done vocabulary of ProgressAndDeviation. Note "closed"
// instead of "completed".
func timelineDone(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "done", "closed":
		return true
	}
	return false
}

func isType(i domain.Issue, name string) bool {
	return strings.EqualFold(strings.TrimSpace(i.Type), name)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StoryProgress classifies story-type issues into toDo/inProgress/done.
// Non-story types are excluded from counts and percentages.
func StoryProgress(issues []domain.Issue) ProgressReport {
	var toDo, inProgress, done int
	for _, i := range issues {
		if !isType(i, "story") {
			continue
		}
		switch {
		case storyDone(i.Status):
			done++
		case storyInProgress(i.Status):
			inProgress++
		default:
			toDo++
		}
	}
	total := toDo + inProgress + done
	pct := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return round2(float64(n) / float64(total) * 100)
	}
	return ProgressReport{
		ToDo:       Bucket{Count: toDo, Percentage: pct(toDo)},
		InProgress: Bucket{Count: inProgress, Percentage: pct(inProgress)},
		Done:       Bucket{Count: done, Percentage: pct(done)},
		Total:      total,
	}
}

// Velocity sums story points over story-type issues. Points default to 0
// when the tracker has none; the rate is 0 whenever nothing was planned.
func Velocity(issues []domain.Issue) VelocityReport {
	var planned, completed float64
	for _, i := range issues {
		if !isType(i, "story") {
			continue
		}
		planned += i.StoryPoints
		if storyDone(i.Status) {
			completed += i.StoryPoints
		}
	}
	rate := 0.0
	if planned > 0 {
		rate = round2(completed / planned * 100)
	}
	return VelocityReport{PlannedPoints: planned, CompletedPoints: completed, CompletionRate: rate}
}

// RemainingTime computes day counts through the sprint window. It fails with
// a ParseError when either date is absent or malformed.
func RemainingTime(s domain.Sprint, now time.Time) (TimeRemaining, error) {
	start, err := ParseSprintDate(s.StartDate)
	if err != nil {
		return TimeRemaining{}, err
	}
	end, err := ParseSprintDate(s.EndDate)
	if err != nil {
		return TimeRemaining{}, err
	}

	total := end.Sub(start)
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > total {
		elapsed = total
	}
	remaining := end.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return TimeRemaining{
		TotalDays:     days(total),
		ElapsedDays:   days(elapsed),
		RemainingDays: days(remaining),
	}, nil
}

func days(d time.Duration) int {
	return int(d.Hours() / 24)
}

// IndividualStatus groups issues of any type by assignee display name, in
// tracker-returned order. "Unassigned" is a valid bucket.
func IndividualStatus(issues []domain.Issue) []AssigneeGroup {
	index := map[string]int{}
	var groups []AssigneeGroup
	for _, i := range issues {
		assignee := i.Assignee
		if assignee == "" {
			assignee = "Unassigned"
		}
		line := IssueLine{
			TicketID: i.Key,
			Title:    i.Summary,
			Status:   orUnknown(i.Status),
			Type:     orUnknown(i.Type),
			Priority: orNotSet(i.Priority),
		}
		pos, ok := index[assignee]
		if !ok {
			index[assignee] = len(groups)
			groups = append(groups, AssigneeGroup{Assignee: assignee})
			pos = len(groups) - 1
		}
		groups[pos].Issues = append(groups[pos].Issues, line)
	}
	return groups
}

// BugStatus filters to bug-type issues.
func BugStatus(issues []domain.Issue) []BugLine {
	var bugs []BugLine
	for _, i := range issues {
		if !isType(i, "bug") {
			continue
		}
		assignee := i.Assignee
		if assignee == "" {
			assignee = "Unassigned"
		}
		bugs = append(bugs, BugLine{
			Key:      i.Key,
			Summary:  i.Summary,
			Assignee: assignee,
			Status:   orUnknown(i.Status),
			Priority: orNotSet(i.Priority),
		})
	}
	return bugs
}

// ProgressAndDeviation is the timeline metric: percentage of all issues (any
// type) that are done or closed, against the percentage of the calendar
// duration elapsed. It intentionally differs from StoryProgress in both type
// filter and status vocabulary; do not unify the two.
func ProgressAndDeviation(startDate, endDate string, issues []domain.Issue, now time.Time) (Timeline, error) {
	start, err := ParseSprintDate(startDate)
	if err != nil {
		return Timeline{}, err
	}
	end, err := ParseSprintDate(endDate)
	if err != nil {
		return Timeline{}, err
	}

	progress := 0
	if len(issues) > 0 {
		done := 0
		for _, i := range issues {
			if timelineDone(i.Status) {
				done++
			}
		}
		progress = int(math.Round(float64(done) / float64(len(issues)) * 100))
	}

	totalSec := end.Sub(start).Seconds()
	elapsedSec := now.Sub(start).Seconds()
	var expected int
	switch {
	case elapsedSec < 0:
		expected = 0
	case elapsedSec >= totalSec:
		expected = 100
	default:
		expected = int(math.Round(elapsedSec / totalSec * 100))
	}

	return Timeline{
		Progress:  progress,
		Deviation: progress - expected,
		StartDate: start.Format("2006-01-02"),
		DueDate:   end.Format("2006-01-02"),
	}, nil
}

var sprintDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// ParseSprintDate parses the date formats Jira uses for sprint bounds.
func ParseSprintDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, &domain.ParseError{Value: s, Err: errors.New("empty date")}
	}
	var lastErr error
	for _, l := range sprintDateLayouts {
		t, err := time.Parse(l, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, &domain.ParseError{Value: s, Err: lastErr}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNotSet(s string) string {
	if s == "" {
		return "Not set"
	}
	return s
}
