package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/casefile/internal/investigate"
	"github.com/ppiankov/casefile/internal/progress"
)

var (
	askNoExpand bool
	askNoStream bool
	askExplain  bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the case documents",
	Long: `Ask routes the question: questions that need everything of a kind are
answered from the knowledge graph, anything else is searched in the corpus
by parallel workers and synthesized. Progress goes to stderr, the answer to
stdout.

Example:
  casefile ask "List all people mentioned in the documents"
  casefile ask "Why did the suspect leave at midnight?" --workers 8
  casefile ask "Who is John Smith?" --no-stream`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			sink := progress.NewWriterSink(cmd.ErrOrStderr(), cmd.OutOrStdout())
			ans, err := a.svc.Ask(ctx, investigate.AskRequest{
				Question: question,
				Workers:  a.cfg.CoA.Workers,
				NoExpand: askNoExpand,
				NoStream: askNoStream,
			}, sink)
			if err != nil {
				return err
			}

			if askExplain {
				c := ans.Classification
				fmt.Fprintf(cmd.ErrOrStderr(), "\nRoute: %s %s (rule %s)\n", c.Route, c.Category, c.Rule)
				for i, q := range ans.Queries {
					fmt.Fprintf(cmd.ErrOrStderr(), "  query %d: %s\n", i+1, q)
				}
			}
			return nil
		})
	},
}

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report [question]",
	Short: "Write a markdown case report",
	Long: `Report runs the worker search over the whole corpus without routing and
writes the synthesized answer as markdown. Without a question it asks for a
case summary: timeline, key findings, conflicts and gaps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			sink := progress.NewWriterSink(cmd.ErrOrStderr(), cmd.OutOrStdout())
			report, err := a.svc.Report(ctx, question, a.cfg.Report.Path, sink)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Report %s written to %s\n", report.ID, a.cfg.Report.Path)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reportCmd)

	askCmd.Flags().Int("workers", 0, "parallel search workers (default from config)")
	bindFlag(askCmd, "coa.workers", "workers")
	askCmd.Flags().BoolVar(&askNoExpand, "no-expand", false, "do not decompose the question into sub-queries")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "synthesize with one blocking call")
	askCmd.Flags().BoolVar(&askExplain, "explain", false, "print the routing decision and search queries")

	reportCmd.Flags().String("out", "", "report path (default from config)")
	bindFlag(reportCmd, "report.path", "out")
}
