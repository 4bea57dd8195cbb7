package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sprintpilot/sprintpilot/internal/domain"
)

func issue(typ, status string, points float64) domain.Issue {
	return domain.Issue{Key: "SP-1", Type: typ, Status: status, StoryPoints: points}
}

func TestStoryProgress_Scenario(t *testing.T) {
	issues := []domain.Issue{
		issue("Story", "Done", 5),
		issue("Story", "In Progress", 3),
		issue("Bug", "Open", 0),
	}
	p := StoryProgress(issues)
	if p.Total != 2 {
		t.Fatalf("expected 2 stories, got %d", p.Total)
	}
	if p.ToDo.Count != 0 || p.InProgress.Count != 1 || p.Done.Count != 1 {
		t.Fatalf("unexpected buckets: %+v", p)
	}
	if p.Done.Percentage != 50 || p.InProgress.Percentage != 50 {
		t.Fatalf("unexpected percentages: %+v", p)
	}
}

func TestStoryProgress_CountsAndPercentagesSum(t *testing.T) {
	issues := []domain.Issue{
		issue("story", "done", 1),
		issue("STORY", "completed", 2),
		issue("Story", "inprogress", 3),
		issue("Story", "To Do", 0),
		issue("Story", "Blocked", 0),
		issue("Task", "Done", 8),
	}
	p := StoryProgress(issues)
	if got := p.ToDo.Count + p.InProgress.Count + p.Done.Count; got != p.Total {
		t.Fatalf("counts %d do not sum to total %d", got, p.Total)
	}
	if p.Total != 5 {
		t.Fatalf("task issue leaked into story total: %d", p.Total)
	}
	sum := p.ToDo.Percentage + p.InProgress.Percentage + p.Done.Percentage
	if math.Abs(sum-100) > 0.1 {
		t.Fatalf("percentages sum to %v, want 100±0.1", sum)
	}
}

func TestStoryProgress_EmptyIsAllZero(t *testing.T) {
	p := StoryProgress([]domain.Issue{issue("Bug", "Done", 0)})
	if p.Total != 0 {
		t.Fatalf("expected total 0, got %d", p.Total)
	}
	if p.ToDo.Percentage != 0 || p.InProgress.Percentage != 0 || p.Done.Percentage != 0 {
		t.Fatalf("expected zero percentages, got %+v", p)
	}
}

func TestVelocity_Scenario(t *testing.T) {
	issues := []domain.Issue{
		issue("Story", "Done", 5),
		issue("Story", "In Progress", 3),
		issue("Bug", "Open", 0),
	}
	v := Velocity(issues)
	if v.PlannedPoints != 8 || v.CompletedPoints != 5 {
		t.Fatalf("unexpected points: %+v", v)
	}
	if v.CompletionRate != 62.5 {
		t.Fatalf("expected rate 62.5, got %v", v.CompletionRate)
	}
}

func TestVelocity_ZeroPlannedMeansZeroRate(t *testing.T) {
	v := Velocity([]domain.Issue{issue("Story", "Done", 0), issue("Story", "To Do", 0)})
	if v.CompletionRate != 0 {
		t.Fatalf("expected rate 0 with no planned points, got %v", v.CompletionRate)
	}
}

func sprint(start, end string) domain.Sprint {
	return domain.Sprint{ID: 1, Name: "Sprint 1", State: domain.SprintStateActive, StartDate: start, EndDate: end}
}

func TestRemainingTime_Clamping(t *testing.T) {
	s := sprint("2025-06-02T09:00:00.000Z", "2025-06-16T09:00:00.000Z")

	before := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	tr, err := RemainingTime(s, before)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ElapsedDays != 0 {
		t.Fatalf("before start: elapsed should be 0, got %d", tr.ElapsedDays)
	}

	after := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	tr, err = RemainingTime(s, after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.RemainingDays != 0 {
		t.Fatalf("after end: remaining should be 0, got %d", tr.RemainingDays)
	}
	if tr.ElapsedDays > tr.TotalDays {
		t.Fatalf("elapsed %d exceeds total %d", tr.ElapsedDays, tr.TotalDays)
	}

	mid := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
	tr, err = RemainingTime(s, mid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := tr.ElapsedDays + tr.RemainingDays - tr.TotalDays; diff < -1 || diff > 1 {
		t.Fatalf("elapsed+remaining=%d, total=%d", tr.ElapsedDays+tr.RemainingDays, tr.TotalDays)
	}
}

func TestRemainingTime_MissingDates(t *testing.T) {
	_, err := RemainingTime(domain.Sprint{Name: "future"}, time.Now())
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestProgressAndDeviation_AllDoneAtEnd(t *testing.T) {
	issues := []domain.Issue{
		issue("Story", "Done", 1),
		issue("Bug", "Closed", 0),
	}
	end := time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
	tl, err := ProgressAndDeviation("2025-06-02T09:00:00.000Z", "2025-06-16T09:00:00.000Z", issues, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", tl.Progress)
	}
	if tl.Deviation != 0 {
		t.Fatalf("expected deviation 0, got %d", tl.Deviation)
	}
	if tl.StartDate != "2025-06-02" || tl.DueDate != "2025-06-16" {
		t.Fatalf("unexpected dates: %+v", tl)
	}
}

// The timeline metric counts "closed" as done and spans all issue types;
// the story metric does neither. Both behaviors are load-bearing.
func TestProgressVocabulariesStayDistinct(t *testing.T) {
	issues := []domain.Issue{
		issue("Bug", "Closed", 0),
		issue("Story", "To Do", 1),
	}
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tl, err := ProgressAndDeviation("2025-06-02T09:00:00.000Z", "2025-06-16T09:00:00.000Z", issues, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Progress != 50 {
		t.Fatalf("timeline should count the closed bug: got %d", tl.Progress)
	}
	p := StoryProgress(issues)
	if p.Done.Count != 0 || p.Total != 1 {
		t.Fatalf("story progress should ignore the closed bug: %+v", p)
	}
}

func TestProgressAndDeviation_BadDates(t *testing.T) {
	_, err := ProgressAndDeviation("not-a-date", "2025-06-16T09:00:00.000Z", nil, time.Now())
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestIndividualStatus_OrderAndDefaults(t *testing.T) {
	issues := []domain.Issue{
		{Key: "SP-1", Summary: "first", Type: "Story", Status: "Done", Assignee: "Alice", Priority: "High"},
		{Key: "SP-2", Summary: "second", Type: "Bug", Status: "Open"},
		{Key: "SP-3", Summary: "third", Type: "Story", Status: "To Do", Assignee: "Alice"},
	}
	groups := IndividualStatus(issues)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Assignee != "Alice" || groups[1].Assignee != "Unassigned" {
		t.Fatalf("group order not tracker order: %+v", groups)
	}
	if len(groups[0].Issues) != 2 || groups[0].Issues[0].TicketID != "SP-1" || groups[0].Issues[1].TicketID != "SP-3" {
		t.Fatalf("issue order not preserved: %+v", groups[0].Issues)
	}
	if groups[1].Issues[0].Priority != "Not set" {
		t.Fatalf("expected default priority, got %q", groups[1].Issues[0].Priority)
	}
}

func TestBugStatus_FiltersToBugs(t *testing.T) {
	issues := []domain.Issue{
		issue("Story", "Done", 5),
		{Key: "SP-9", Summary: "crash on login", Type: "Bug", Status: "Open", Assignee: "Bob", Priority: "High"},
	}
	bugs := BugStatus(issues)
	if len(bugs) != 1 {
		t.Fatalf("expected 1 bug, got %d", len(bugs))
	}
	if bugs[0].Key != "SP-9" || bugs[0].Assignee != "Bob" {
		t.Fatalf("unexpected bug entry: %+v", bugs[0])
	}
}
