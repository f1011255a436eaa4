package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/services"
)

var (
	statusOrder  = []model.TaskStatus{model.StatusOpen, model.StatusClaimed, model.StatusCompleted, model.StatusPending, model.StatusVerified, model.StatusFlagged}
	urgencyOrder = []model.Urgency{model.UrgencyCritical, model.UrgencyHigh, model.UrgencyMedium, model.UrgencyLow}
)

func writeTaskTable(w io.Writer, tasks []model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}

	fmt.Fprintf(w, "%-36s  %-10s  %-8s  %-30s  %s\n", "ID", "Status", "Urgency", "Title", "Skills")
	fmt.Fprintln(w, strings.Repeat("-", 36)+"  "+strings.Repeat("-", 10)+"  "+strings.Repeat("-", 8)+"  "+strings.Repeat("-", 30)+"  ------")

	for _, t := range tasks {
		title := truncate(t.Title, 30)
		if t.WellnessCheck {
			title = truncate("♥ "+t.Title, 30)
		}

		skills := "—"
		if len(t.SkillTags) > 0 {
			skills = strings.Join(t.SkillTags, ", ")
		}

		fmt.Fprintf(w, "%-36s  %-10s  %-8s  %-30s  %s\n", t.ID, t.Status, t.Urgency, title, skills)
	}
}

func writeStats(w io.Writer, stats *services.Stats) {
	fmt.Fprintf(w, "\n📊 %d tasks\n\n", stats.Total)

	fmt.Fprintln(w, "By status:")
	for _, s := range statusOrder {
		fmt.Fprintf(w, "  %-10s %d\n", s, stats.ByStatus[s])
	}

	fmt.Fprintln(w, "\nBy urgency:")
	for _, u := range urgencyOrder {
		fmt.Fprintf(w, "  %-10s %d\n", u, stats.ByUrgency[u])
	}

	fmt.Fprintf(w, "\nActive volunteers: %d\n", stats.ActiveVolunteers)
	fmt.Fprintf(w, "Wellness checks:   %d\n\n", stats.WellnessChecks)
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	if email != "" {
		return email
	}
	return "(unnamed)"
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
