package cli

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dimitrije/teamboard/internal/teamcode"
	"github.com/dimitrije/teamboard/pkg/client"
	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *app) teamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List the teams you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.signedIn(cmd); err != nil {
				return err
			}
			teams, err := a.client.Teams(cmd.Context())
			if err != nil {
				return err
			}
			if len(teams) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "You are not in any team yet. Try create-team or join-team.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), teamsTable(teams))
			return nil
		},
	}
}

func teamsTable(teams []dto.TeamResponse) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "CODE", "ROLE", "ID")
	for _, team := range teams {
		t.Row(team.Name, team.Code, team.Role, team.ID.String())
	}
	return t.String()
}

func (a *app) createTeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-team NAME",
		Short: "Create a team and print its join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.signedIn(cmd); err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("team name is required")
			}
			team, err := a.client.CreateTeam(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s. Share code %s to invite people.\n", team.Name, team.Code)
			return nil
		},
	}
}

func (a *app) joinTeamCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "join-team CODE",
		Short: "Join a team with its share code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.signedIn(cmd); err != nil {
				return err
			}
			code := teamcode.Normalize(args[0])
			if len(code) < teamcode.MinJoinLength {
				return fmt.Errorf("team code must be at least %d characters", teamcode.MinJoinLength)
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}

			out := cmd.OutOrStdout()
			team, err := a.client.JoinTeam(cmd.Context(), code, name)
			switch {
			case client.IsStatus(err, http.StatusNotFound):
				fmt.Fprintf(out, "No team uses code %s.\n", code)
				return nil
			case client.IsStatus(err, http.StatusConflict):
				fmt.Fprintln(out, "You are already a member of this team.")
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(out, "Joined %s as %s.\n", team.Name, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name inside the team")
	return cmd
}

func (a *app) membersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members TEAM",
		Short: "List a team's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.signedIn(cmd); err != nil {
				return err
			}
			teamID, err := a.resolveTeam(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			members, err := a.client.Members(cmd.Context(), teamID)
			if err != nil {
				return err
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("NAME", "EMAIL", "ROLE")
			for _, m := range members {
				t.Row(m.DisplayName, m.Email, m.Role)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

func (a *app) leaveTeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave-team TEAM",
		Short: "Leave a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.signedIn(cmd); err != nil {
				return err
			}
			teamID, err := a.resolveTeam(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.client.LeaveTeam(cmd.Context(), teamID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Left the team.")
			return nil
		},
	}
}

// resolveTeam accepts a team id or a share code.
func (a *app) resolveTeam(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	team, err := a.client.LookupCode(ctx, teamcode.Normalize(ref))
	if client.IsStatus(err, http.StatusNotFound) {
		return uuid.Nil, fmt.Errorf("no team matches %q", ref)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return team.ID, nil
}
