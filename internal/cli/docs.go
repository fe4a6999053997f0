package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List or remove processed documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in the knowledge graph and the corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			docs, err := a.svc.Documents(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Knowledge graph (%d):\n", len(docs.Graph))
			for _, name := range docs.Graph {
				fmt.Fprintf(out, "  %s\n", name)
			}
			if len(docs.Corpus) > 0 {
				fmt.Fprintf(out, "\nCorpus files (%d):\n", len(docs.Corpus))
				for _, f := range docs.Corpus {
					fmt.Fprintf(out, "  %s  %s\n", f.ID, f.Status)
				}
			}
			return nil
		})
	},
}

var docsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a document's contribution from the knowledge graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			summary, err := a.svc.RemoveDocument(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s (%d documents, %d entities, %d conflicts remain)\n",
				args[0], summary.Documents, summary.Entities, summary.Conflicts)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsRemoveCmd)
}
