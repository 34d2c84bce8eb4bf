package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chatvk/chatvk/internal/auth"
	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// maxLoginAttempts bounds the interactive login prompt.
const maxLoginAttempts = 3

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.login(cmd.Context(), false)
			})
		},
	}
}

func newSignupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.login(cmd.Context(), true)
			})
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				if err := a.auth.SignOut(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Logged out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.whoami(time.Now())
			})
		},
	}
}

// login prompts for credentials until the backend accepts them, then signs
// the returned session in.
func (a *app) login(ctx context.Context, signup bool) error {
	verb := "Log in"
	if signup {
		verb = "Sign up"
	}
	fmt.Fprintf(a.out, "%s to %s\n", verb, a.cfg.BaseURL)

	for attempt := 1; ; attempt++ {
		creds, err := a.promptCredentials(signup)
		if err != nil {
			return err
		}

		call := a.client.Login
		if signup {
			call = a.client.Signup
		}
		sess, err := call(ctx, creds)
		if err == nil {
			if err := a.auth.SignIn(sess); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Signed in as %s.\n", sess.DisplayName())
			return nil
		}

		msg := chatapi.ServerMessage(err)
		if msg == "" {
			msg = err.Error()
		}
		if attempt >= maxLoginAttempts || !isRetryable(err) {
			return fmt.Errorf("%s failed: %s", strings.ToLower(verb), msg)
		}
		fmt.Fprintf(a.out, "%s failed: %s\n", verb, msg)
	}
}

// isRetryable reports whether asking for credentials again could help.
func isRetryable(err error) bool {
	var rerr *chatapi.RequestError
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.StatusCode >= 400 && rerr.StatusCode < 500
}

func (a *app) promptCredentials(signup bool) (chatapi.Credentials, error) {
	var creds chatapi.Credentials
	var err error

	if creds.Username, err = a.prompt("Username: "); err != nil {
		return creds, err
	}
	if creds.Username == "" {
		return creds, errors.New("username cannot be empty")
	}
	if signup {
		if creds.Email, err = a.prompt("Email: "); err != nil {
			return creds, err
		}
	}
	if creds.Password, err = a.promptPassword("Password: "); err != nil {
		return creds, err
	}
	if creds.Password == "" {
		return creds, errors.New("password cannot be empty")
	}
	return creds, nil
}

// prompt prints label and reads one trimmed line.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("input closed")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when a terminal is attached.
func (a *app) promptPassword(label string) (string, error) {
	if a.passwordFD < 0 {
		return a.prompt(label)
	}
	fmt.Fprint(a.out, label)
	pw, err := term.ReadPassword(a.passwordFD)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func (a *app) whoami(now time.Time) error {
	s, ok := a.auth.Current()
	if !ok {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}
	fmt.Fprintf(a.out, "User:    %s\n", s.DisplayName())
	if s.User.Email != "" {
		fmt.Fprintf(a.out, "Email:   %s\n", s.User.Email)
	}
	fmt.Fprintf(a.out, "Backend: %s\n", a.cfg.BaseURL)

	info, err := auth.InspectToken(s.Token)
	if err != nil {
		a.logger.Debug("token not inspectable")
		return nil
	}
	switch {
	case info.ExpiresAt.IsZero():
		fmt.Fprintln(a.out, "Token:   no expiry")
	case info.Expired(now):
		fmt.Fprintf(a.out, "Token:   expired %s\n", info.ExpiresAt.Local().Format(time.DateTime))
	default:
		fmt.Fprintf(a.out, "Token:   expires %s\n", info.ExpiresAt.Local().Format(time.DateTime))
	}
	return nil
}
