package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sprintpilot/sprintpilot/internal/domain"
	"github.com/sprintpilot/sprintpilot/internal/metrics"
)

// pct1 renders a count as a one-decimal percentage of total. The chat path
// re-derives percentages from the raw counts at this precision; the
// structured report keeps two decimals. Both are valid renderings of the
// same numbers and must stay reproducible.
func pct1(count, total int) string {
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(count)/float64(total)*100)
}

func fmtPts(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func (s *Service) formatSprintStatus(sprint domain.Sprint, issues []domain.Issue) string {
	prog := metrics.StoryProgress(issues)
	vel := metrics.Velocity(issues)

	var b strings.Builder
	fmt.Fprintf(&b, "Sprint %q status:\n", sprint.Name)
	fmt.Fprintf(&b, "Stories: %d done (%s%%), %d in progress (%s%%), %d to do (%s%%) of %d.\n",
		prog.Done.Count, pct1(prog.Done.Count, prog.Total),
		prog.InProgress.Count, pct1(prog.InProgress.Count, prog.Total),
		prog.ToDo.Count, pct1(prog.ToDo.Count, prog.Total),
		prog.Total)
	fmt.Fprintf(&b, "Velocity: %s of %s points completed (%.1f%%).",
		fmtPts(vel.CompletedPoints), fmtPts(vel.PlannedPoints), vel.CompletionRate)
	if tr, err := metrics.RemainingTime(sprint, s.now()); err == nil {
		fmt.Fprintf(&b, "\nTime: %d of %d days elapsed, %d remaining.",
			tr.ElapsedDays, tr.TotalDays, tr.RemainingDays)
	}
	return b.String()
}

func formatIndividualStatus(sprint domain.Sprint, groups []metrics.AssigneeGroup) string {
	if len(groups) == 0 {
		return fmt.Sprintf("No issues found in sprint %q.", sprint.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Who is doing what in sprint %q:", sprint.Name)
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s:", g.Assignee)
		for _, is := range g.Issues {
			fmt.Fprintf(&b, "\n  - %s %s [%s, %s, %s]",
				is.TicketID, is.Title, is.Status, is.Type, is.Priority)
		}
	}
	return b.String()
}

// formatMemberStatus reports each requested name independently. Matching is
// a case-insensitive exact comparison against assignee display names.
func formatMemberStatus(names []string, groups []metrics.AssigneeGroup) string {
	var parts []string
	for _, name := range names {
		var found *metrics.AssigneeGroup
		for i := range groups {
			if strings.EqualFold(groups[i].Assignee, name) {
				found = &groups[i]
				break
			}
		}
		if found == nil {
			parts = append(parts, fmt.Sprintf("I couldn't find any issues assigned to %s in the current sprint.", name))
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s is working on:", found.Assignee)
		for _, is := range found.Issues {
			fmt.Fprintf(&b, "\n  - %s %s [%s, %s, %s]",
				is.TicketID, is.Title, is.Status, is.Type, is.Priority)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}
