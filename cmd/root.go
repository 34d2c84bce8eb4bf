package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chatvk/chatvk/internal/auth"
	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/chatvk/chatvk/internal/config"
	"github.com/chatvk/chatvk/internal/logging"
	"github.com/chatvk/chatvk/internal/route"
	"github.com/chatvk/chatvk/internal/session"
	"github.com/chatvk/chatvk/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	cfgFile      string
	baseURLFlag  string
	logLevelFlag string
	useTUI       bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "chatvk",
		Short: "Terminal client for the Chat.VK assistant",
		Long:  "chatvk signs in to a Chat.VK backend and lets you hold conversations with its assistant.",
		// Running chatvk with no subcommand opens the chat screen.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when both ends are a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") &&
				term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, runChat)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/chatvk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "override backend base URL")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use the full-screen chat UI (default: auto-detect terminal)")

	// Subcommands
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newSignupCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newChatsCmd())
	rootCmd.AddCommand(newMessagesCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string for the welcome box,
// e.g. "v0.3.1 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config values
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, nil
}

const retryBaseDelay = 500 * time.Millisecond

// app holds the process-wide services every command shares.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  session.Store
	auth   *auth.Context
	client *chatapi.Client
	bridge *tui.Bridge

	in  *bufio.Reader
	out io.Writer

	// passwordFD is the terminal read for hidden password entry, or -1 to
	// read passwords as plain lines from in.
	passwordFD int
}

// newApp wires the session store, auth context and API client from cfg.
func newApp(cfg *config.Config, logger *zap.Logger, store session.Store, in io.Reader, out io.Writer) (*app, error) {
	authCtx, err := auth.NewContext(store, logger.Named("auth"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		auth:       authCtx,
		bridge:     tui.NewBridge(),
		in:         bufio.NewReader(in),
		out:        out,
		passwordFD: -1,
	}

	opts := []chatapi.Option{
		chatapi.WithTimeout(cfg.Timeout.Std()),
		chatapi.WithRetries(cfg.Retries, retryBaseDelay),
		chatapi.WithLogger(logger.Named("api")),
		chatapi.WithAuthPaths(cfg.Auth.LoginPath, cfg.Auth.SignupPath),
	}
	if cfg.Auth.RedirectOnAny401 {
		opts = append(opts, chatapi.WithUnauthorizedHandler(func() {
			a.bridge.Navigate(route.Login)
		}))
	}
	a.client = chatapi.New(cfg.BaseURL, authCtx, opts...)
	return a, nil
}

// withApp builds the app for a command invocation and tears it down after fn.
func withApp(cmd *cobra.Command, fn func(cmd *cobra.Command, a *app) error) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	dbPath, err := cfg.SessionDBPath()
	if err != nil {
		return fmt.Errorf("session db path: %w", err)
	}
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	a, err := newApp(cfg, logger, store, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		a.passwordFD = int(os.Stdin.Fd())
	}
	logger.Debug("starting", zap.String("command", cmd.Name()), zap.String("base_url", cfg.BaseURL))
	return fn(cmd, a)
}

// requireSession returns an error pointing at `chatvk login` when no session
// is stored.
func (a *app) requireSession() error {
	if !a.auth.Authenticated() {
		return fmt.Errorf("not logged in (run `chatvk login`)")
	}
	return nil
}
