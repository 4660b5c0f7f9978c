package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/pkg/board"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/dimitrije/teamboard/pkg/session"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

type teamBoard struct {
	team    *dto.TeamResponse
	me      uuid.UUID
	store   *board.Store
	members []dto.TeamMemberResponse
}

// openBoard loads a team's tasks for the signed-in user.
func (a *app) openBoard(cmd *cobra.Command, ref string) (*teamBoard, error) {
	sess, err := a.signedIn(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	teamID, err := a.resolveTeam(ctx, ref)
	if err != nil {
		return nil, err
	}
	team, err := a.client.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}

	members, err := a.client.Members(ctx, team.ID)
	if err != nil {
		return nil, err
	}

	store := board.NewStore(a.client, team.ID, board.Member{UserID: sess.UserID(), Role: team.Role}, a.log)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	return &teamBoard{team: team, me: sess.UserID(), store: store, members: members}, nil
}

func (b *teamBoard) render() string {
	title := fmt.Sprintf("%s  [%s]", b.team.Name, b.team.Code)
	return renderBoard(title, b.store.Columns(), b.me, b.names())
}

func (b *teamBoard) names() map[uuid.UUID]string {
	names := make(map[uuid.UUID]string, len(b.members))
	for _, m := range b.members {
		names[m.UserID] = displayName(m.DisplayName, m.Email)
	}
	return names
}

// findMember matches a display name, ignoring case, or a user id prefix.
func (b *teamBoard) findMember(ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	var byName, byID []dto.TeamMemberResponse
	for _, m := range b.members {
		if strings.EqualFold(m.DisplayName, ref) {
			byName = append(byName, m)
		}
		if strings.HasPrefix(m.UserID.String(), strings.ToLower(ref)) {
			byID = append(byID, m)
		}
	}

	found := byName
	if len(found) == 0 {
		found = byID
	}
	switch len(found) {
	case 0:
		return uuid.Nil, fmt.Errorf("no member of %s matches %q", b.team.Name, ref)
	case 1:
		return found[0].UserID, nil
	}
	return uuid.Nil, fmt.Errorf("%q matches %d members, use their user id", ref, len(found))
}

// findTask matches a full id or the short prefix shown on the board.
func (b *teamBoard) findTask(ref string) (dto.Task, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	var found []dto.Task
	for _, t := range b.store.Tasks() {
		if strings.HasPrefix(t.ID.String(), ref) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return dto.Task{}, fmt.Errorf("no task matches %q", ref)
	case 1:
		return found[0], nil
	}
	return dto.Task{}, fmt.Errorf("%q matches %d tasks, use more characters", ref, len(found))
}

func (a *app) boardCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "board TEAM",
		Short: "Show a team's board",
		Long:  "Show a team's board. TEAM is the team id or its share code.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBoard(cmd, args[0])
			if err != nil {
				return err
			}
			if !watch {
				fmt.Fprintln(cmd.OutOrStdout(), b.render())
				return nil
			}
			return a.watchBoard(cmd, b)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep the board open and follow changes")
	return cmd
}

// watchBoard redraws on every change until interrupted, signed out or the
// feed connection drops.
func (a *app) watchBoard(cmd *cobra.Command, b *teamBoard) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	var mu sync.Mutex
	draw := func() {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(out, clearScreen+b.render()+"\n")
	}
	removeListener := b.store.OnChange(draw)
	defer removeListener()

	signedOut := make(chan struct{})
	var once sync.Once
	sub := a.gate.OnChange(func(s *session.Session) {
		if s == nil {
			once.Do(func() { close(signedOut) })
		}
	})
	defer sub.Unsubscribe()
	go func() {
		if err := a.gate.Watch(ctx); err != nil {
			a.log.Warn("not following session changes", logger.Err(err))
		}
	}()

	bridge := board.NewBridge(b.store, a.client.Feed(a.log), a.log)
	if err := bridge.Start(ctx); err != nil {
		return err
	}
	defer bridge.Stop()

	draw()

	select {
	case <-ctx.Done():
		return nil
	case <-signedOut:
		fmt.Fprintln(out, "Signed out elsewhere.")
		return errSignIn
	case <-bridge.Done():
		return errors.New("lost connection to the change feed")
	}
}

func (a *app) addTaskCmd() *cobra.Command {
	var assignee string

	cmd := &cobra.Command{
		Use:   "add TEAM TITLE",
		Short: "Add a task, assigned to you unless --assignee is given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBoard(cmd, args[0])
			if err != nil {
				return err
			}

			var assigneeID *uuid.UUID
			if assignee != "" {
				id, err := b.findMember(assignee)
				if err != nil {
					return err
				}
				assigneeID = &id
			}

			task, err := b.store.Add(cmd.Context(), args[1], assigneeID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s\n", shortID(task.ID), task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "display name or user id prefix of a team member")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status TEAM TASK STATUS",
		Short: "Move a task assigned to you to todo, in_progress or done",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBoard(cmd, args[0])
			if err != nil {
				return err
			}
			task, err := b.findTask(args[1])
			if err != nil {
				return err
			}
			status := strings.ReplaceAll(strings.ToLower(args[2]), "-", "_")
			if err := b.store.SetStatus(cmd.Context(), task.ID, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", task.Title, columnTitles[status])
			return nil
		},
	}
}

func (a *app) removeTaskCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm TEAM TASK",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.openBoard(cmd, args[0])
			if err != nil {
				return err
			}
			task, err := b.findTask(args[1])
			if err != nil {
				return err
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %q?", task.Title)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Kept.")
				return nil
			}
			if err := b.store.Delete(cmd.Context(), task.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", task.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
