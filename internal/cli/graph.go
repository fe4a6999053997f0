package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/model"
)

var (
	graphJSON  bool
	entityType string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the extracted knowledge graph",
}

var graphSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show graph counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			g := a.svc.Graph(ctx)
			s := graph.Summarize(g)
			if graphJSON {
				return printJSON(cmd.OutOrStdout(), s)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  Documents:  %d\n", s.Documents)
			fmt.Fprintf(out, "  Entities:   %d\n", s.Entities)
			fmt.Fprintf(out, "  Claims:     %d\n", s.Claims)
			fmt.Fprintf(out, "  Events:     %d\n", s.Events)
			fmt.Fprintf(out, "  Key facts:  %d\n", s.KeyFacts)
			fmt.Fprintf(out, "  Conflicts:  %d\n", s.Conflicts)
			if !g.UpdatedAt.IsZero() {
				fmt.Fprintf(out, "  Updated:    %s\n", g.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

var graphConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicting claims between documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			conflicts := a.svc.Graph(ctx).Conflicts
			if graphJSON {
				return printJSON(cmd.OutOrStdout(), conflicts)
			}

			out := cmd.OutOrStdout()
			if len(conflicts) == 0 {
				fmt.Fprintln(out, "No conflicts detected.")
				return nil
			}
			for i, c := range conflicts {
				fmt.Fprintf(out, "%d. %s [%s]\n", i+1, c.Subject, c.Type)
				for _, claim := range c.Claims {
					fmt.Fprintf(out, "   - %q (%s)\n", claim.Claim, claim.Source)
				}
				if c.Description != "" {
					fmt.Fprintf(out, "   %s\n", c.Description)
				}
			}
			return nil
		})
	},
}

var graphEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List extracted entities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var entities []model.Entity
			for _, e := range a.svc.Graph(ctx).Entities {
				if entityType == "" || strings.EqualFold(string(e.Type), entityType) {
					entities = append(entities, e)
				}
			}
			if graphJSON {
				return printJSON(cmd.OutOrStdout(), entities)
			}

			out := cmd.OutOrStdout()
			for _, e := range entities {
				fmt.Fprintf(out, "%-30s %-14s %s\n", e.Name, e.Type, strings.Join(e.Source, ", "))
			}
			fmt.Fprintf(out, "\n%d entities\n", len(entities))
			return nil
		})
	},
}

var graphDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Merge entities that name the same person or thing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.svc.Deduplicate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %d entities → %d (%d duplicates merged)\n", res.Before, res.After, res.Removed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphSummaryCmd)
	graphCmd.AddCommand(graphConflictsCmd)
	graphCmd.AddCommand(graphEntitiesCmd)
	graphCmd.AddCommand(graphDedupeCmd)

	graphCmd.PersistentFlags().BoolVar(&graphJSON, "json", false, "print JSON")
	graphEntitiesCmd.Flags().StringVar(&entityType, "type", "", "only entities of this type (Person, Organization, ...)")
}
