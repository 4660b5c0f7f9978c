package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) signUpCmd() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.gate.SignUp(cmd.Context(), email, password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s.\n", displayName(sess.User.DisplayName, sess.User.Email))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) signInCmd() *cobra.Command {
	var email, password, code, provider string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a password, or through GitHub or Google",
		Long: `Sign in with --email and --password.

For GitHub or Google, run "teamboard signin --provider github" to get a link,
finish in the browser and pass the code it shows to "teamboard signin --code".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch {
			case provider != "":
				url, err := a.client.ConsentURL(ctx, provider)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Open this link to continue:\n\n  %s\n\nthen run: teamboard signin --code <code>\n", url)
				return nil
			case code != "":
				sess, err := a.gate.SignInWithCode(ctx, code)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Signed in as %s.\n", sess.User.Email)
				return nil
			case email != "" && password != "":
				sess, err := a.gate.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Signed in as %s.\n", sess.User.Email)
				return nil
			}
			return errors.New("pass --email and --password, --provider or --code")
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&provider, "provider", "", "github or google")
	cmd.Flags().StringVar(&code, "code", "", "one-time code from the browser sign-in")
	cmd.MarkFlagsMutuallyExclusive("provider", "code", "email")
	return cmd
}

func (a *app) signOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.gate.Init(cmd.Context()); err != nil {
				return err
			}
			if _, ok := a.gate.Current(); !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			if err := a.gate.SignOut(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Signed out locally, but the server did not confirm:", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func (a *app) whoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.signedIn(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", displayName(sess.User.DisplayName, sess.User.Email), sess.User.Email)
			return nil
		},
	}
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}
