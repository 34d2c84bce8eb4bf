package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chatvk/chatvk/internal/chatapi"
	"github.com/chatvk/chatvk/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Asks for the Chat.VK backend address, checks that it answers, and saves it to the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(cmd *cobra.Command, a *app) error {
				return a.runInit(cmd.Context(), cfgFile, !skipCheck)
			})
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "no-check", false, "save without contacting the backend")
	return cmd
}

func (a *app) runInit(ctx context.Context, path string, check bool) error {
	fmt.Fprintln(a.out, "Welcome to the chatvk configuration wizard!")
	fmt.Fprintln(a.out)

	input, err := a.prompt(fmt.Sprintf("Backend URL [%s]: ", a.cfg.BaseURL))
	if err != nil {
		return err
	}
	baseURL := strings.TrimRight(input, "/")
	if baseURL == "" {
		baseURL = a.cfg.BaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend URL %q (want http:// or https://)", baseURL)
	}

	if check {
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := chatapi.New(baseURL, nil, chatapi.WithLogger(a.logger.Named("api"))).Health(hctx)
		cancel()
		if err != nil {
			fmt.Fprintf(a.out, "Warning: %s did not answer the health check: %v\n", baseURL, err)
			answer, perr := a.prompt("Save anyway? [y/N]: ")
			if perr != nil {
				return perr
			}
			if strings.ToLower(answer) != "y" {
				fmt.Fprintln(a.out, "Aborted.")
				return nil
			}
		} else {
			fmt.Fprintln(a.out, "Backend is reachable.")
		}
	}

	if err := config.SaveBaseURL(path, baseURL); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if path == "" {
		path, _ = config.DefaultPath()
	}
	fmt.Fprintf(a.out, "\nConfig saved to %s\n", path)
	fmt.Fprintln(a.out, "You can now run: chatvk login")
	return nil
}
