package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/apiclient"
	"github.com/dynodocs/template-engine/internal/logging"
	"github.com/dynodocs/template-engine/internal/session"
)

const (
	defaultServerURL = "http://localhost:12212"
)

var (
	serverURL string
	token     string
	tenantID  string
	userID    string
	verbose   bool
	timeout   time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dynodocs",
	Short: "Render, inspect and edit DynoDocs template designs",
	Long: `Works on design files locally (render, tokens, validate, edit) or talks
to a running template service (remote, edit --remote).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// the terminal editor owns the screen
		if cmd.Name() == "edit" {
			logger = zap.NewNop()
			return nil
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, false)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote <command...>",
	Short: "Run a text command on the server",
	Long: `Sends the command to the server's /command endpoint, for example:

  dynodocs remote template list
  dynodocs remote render <template-id> --width 300 --format png
  dynodocs remote job status <job-id>
  dynodocs remote tenant set acme agency_name="Acme Travel"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		result, err := client().Command(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if !result.Success {
			printError(cmd.ErrOrStderr(), result)
			return fmt.Errorf("command failed")
		}
		printSuccess(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("DYNODOCS_SERVER", defaultServerURL), "Server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("DYNODOCS_TOKEN"), "Bearer token for the server")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "Tenant ID (used when the server trusts headers)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID recorded on saves")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for server requests")

	rootCmd.AddCommand(remoteCmd, renderCmd, tokensCmd, validateCmd, editCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func identity() session.Context {
	if token != "" {
		return session.Static{AccessToken: token, Tenant: tenantID, User: userID}
	}
	return session.Static{Tenant: tenantID, User: userID}
}

func client() *apiclient.Client {
	return apiclient.New(serverURL, identity())
}

func printSuccess(w io.Writer, result *apiclient.CommandResult) {
	if result.Message != "" {
		fmt.Fprintln(w, result.Message)
	}

	if raw, ok := result.Data["templates"]; ok {
		var list []apiclient.Summary
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			fmt.Fprintln(w, "\nTemplates:")
			for _, t := range list {
				fmt.Fprintf(w, "  %s: %s (updated %s)\n", t.ID, t.Name, t.UpdatedAt.Format(time.RFC3339))
			}
		}
	}

	if raw, ok := result.Data["jobs"]; ok {
		var list []struct {
			ID         string `json:"id"`
			Status     string `json:"status"`
			TemplateID string `json:"templateId"`
		}
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			fmt.Fprintln(w, "\nJobs:")
			for _, j := range list {
				fmt.Fprintf(w, "  %s: %s (template: %s)\n", j.ID, j.Status, j.TemplateID)
			}
		}
	}

	if raw, ok := result.Data["tokens"]; ok {
		var list []string
		if json.Unmarshal(raw, &list) == nil {
			for _, t := range list {
				fmt.Fprintf(w, "  %s\n", t)
			}
		}
	}

	for _, key := range []string{"job_id", "template_id"} {
		var id string
		if raw, ok := result.Data[key]; ok && json.Unmarshal(raw, &id) == nil {
			label := strings.ReplaceAll(key, "_id", " ID")
			fmt.Fprintf(w, "%s%s: %s\n", strings.ToUpper(label[:1]), label[1:], id)
		}
	}
}

func printError(w io.Writer, result *apiclient.CommandResult) {
	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	} else if result.Message != "" {
		fmt.Fprintf(w, "%s\n", result.Message)
	}
}
