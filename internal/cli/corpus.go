package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the searchable document corpus",
}

var corpusCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty corpus and make it active",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := a.svc.CreateCorpus(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created corpus %s\n", id)
			return nil
		})
	},
}

var corpusCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete the active corpus (the knowledge graph is kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id, err := a.svc.DeleteCorpus(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted corpus %s\n", id)
			return nil
		})
	},
}

var corpusStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus indexing progress and graph counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return printJSON(cmd.OutOrStdout(), a.svc.Status(ctx))
		})
	},
}

func init() {
	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusCreateCmd)
	corpusCmd.AddCommand(corpusCleanupCmd)
	corpusCmd.AddCommand(corpusStatusCmd)
}

// withApp builds the app, runs fn under a context canceled on interrupt,
// then releases the app
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
