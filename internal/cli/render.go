package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dimitrije/teamboard/pkg/board"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
)

const columnWidth = 32

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(columnWidth)
	headerStyle = lipgloss.NewStyle().Bold(true)
	mineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

var columnTitles = map[string]string{
	dto.StatusTodo:       "To Do",
	dto.StatusInProgress: "In Progress",
	dto.StatusDone:       "Done",
}

// shortID is what the board prints and what task commands accept.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func renderBoard(title string, cols board.Columns, me uuid.UUID, names map[uuid.UUID]string) string {
	rendered := make([]string, 0, len(dto.Statuses))
	for _, status := range dto.Statuses {
		tasks := cols.ByStatus(status)

		var b strings.Builder
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", columnTitles[status], len(tasks))))
		for _, t := range tasks {
			b.WriteString("\n")
			b.WriteString(renderTask(t, me, names))
		}
		rendered = append(rendered, columnStyle.Render(b.String()))
	}
	return headerStyle.Render(title) + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderTask(t dto.Task, me uuid.UUID, names map[uuid.UUID]string) string {
	line := dimStyle.Render(shortID(t.ID)) + " " + t.Title
	switch {
	case t.IsAssignee(me):
		return line + " " + mineStyle.Render("(you)")
	case t.AssignedTo != nil:
		return line + "\n  " + dimStyle.Render("Assigned to: "+memberName(names, *t.AssignedTo))
	}
	return line
}

// memberName falls back to the short id for people who left the team.
func memberName(names map[uuid.UUID]string, id uuid.UUID) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return shortID(id)
}
