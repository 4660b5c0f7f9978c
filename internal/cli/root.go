// Package cli implements the teamboard terminal client.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dimitrije/teamboard/internal/config"
	"github.com/dimitrije/teamboard/internal/logger"
	"github.com/dimitrije/teamboard/pkg/client"
	"github.com/dimitrije/teamboard/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "TEAMBOARD"

// app is built once per invocation, after flags and config are resolved.
type app struct {
	v      *viper.Viper
	log    *slog.Logger
	client *client.Client
	gate   *session.Gate
}

// NewRootCmd returns the teamboard command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "teamboard",
		Short: "Team task boards from the terminal",
		Long: `teamboard signs you in, manages your teams and shows a live
three-column board (To Do, In Progress, Done) for each of them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/teamboard/config.yaml)")
	flags.String("api-url", "", "teamboard API base url")
	flags.String("session-file", "", "where the session is kept")
	flags.String("log-level", "warn", "debug, info, warn or error")
	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = a.v.BindPFlag("session_file", flags.Lookup("session-file"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		a.signUpCmd(),
		a.signInCmd(),
		a.signOutCmd(),
		a.whoAmICmd(),
		a.teamsCmd(),
		a.createTeamCmd(),
		a.joinTeamCmd(),
		a.membersCmd(),
		a.leaveTeamCmd(),
		a.boardCmd(),
		a.addTaskCmd(),
		a.statusCmd(),
		a.removeTaskCmd(),
	)
	return root
}

func (a *app) init(stderr io.Writer) error {
	defaults := config.LoadClient()
	a.v.SetDefault("api_url", defaults.APIURL)
	a.v.SetDefault("session_file", defaults.SessionFile)

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath("$HOME/.config/teamboard")
		a.v.AddConfigPath(".")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || a.v.GetString("config") != "" {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	a.log = logger.New(&logger.Config{
		Level:  a.v.GetString("log_level"),
		Format: "text",
		Output: stderr,
	})

	c, err := client.New(a.v.GetString("api_url"))
	if err != nil {
		return err
	}
	a.client = c
	a.gate = session.NewGate(c, a.v.GetString("session_file"), a.log)
	return nil
}

// errSignIn is what users see when a command needs a session.
var errSignIn = errors.New("please sign in first: teamboard signin")

// signedIn restores the stored session and returns it.
func (a *app) signedIn(cmd *cobra.Command) (*session.Session, error) {
	if err := a.gate.Init(cmd.Context()); err != nil {
		return nil, err
	}
	sess, err := a.gate.Require()
	if errors.Is(err, session.ErrNoSession) {
		return nil, errSignIn
	}
	return sess, err
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
