package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/ai"
	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/services"
)

func newCompareCmd(root *rootOptions) *cobra.Command {
	var useAI bool
	var provider, model string

	cmd := &cobra.Command{
		Use:   "compare FILE|DIR...",
		Short: "Compare product costs across invoices",
		Long: `Allocates every invoice and lists the products bought in more than one of
them with the minimum, maximum and quantity-weighted average final unit cost.

Products are matched by code. With --ai the configured language model groups
products whose descriptions name the same item even when codes differ; if it
fails, matching falls back to codes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			docs, err := readDocuments(files)
			if err != nil {
				return err
			}

			result := root.processor().Process(cmd.Context(), docs)
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			for _, o := range result.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(errOut, "skipped %s: %v\n", o.Source, o.Err)
				}
			}

			invoices := result.Invoices()
			if len(invoices) < 2 {
				return errors.New("at least two valid invoices are needed to compare")
			}

			matcher := services.NewMatcher()
			groups := matcher.Match(invoices)

			if useAI {
				p, err := ai.NewProvider(root.config.AI, provider, model)
				if err != nil {
					fmt.Fprintf(errOut, "AI grouping unavailable, using codes: %v\n", err)
				} else {
					grouper := ai.NewGrouper(p, root.logger)
					groups, err = matcher.MatchWithGrouping(cmd.Context(), invoices, grouper)
					if err != nil {
						root.logger.Warn("AI grouping failed", zap.Error(err))
						fmt.Fprintf(errOut, "%v\n", err)
					}
				}
			}

			printGroups(out, len(invoices), groups)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useAI, "ai", false, "Group similar descriptions with the configured AI provider")
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider: openai, gemini or ollama (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "AI model (overrides config)")
	return cmd
}

func printGroups(out io.Writer, invoices int, groups []models.ComparisonGroup) {
	fmt.Fprintf(out, "%d invoices, %d products in more than one invoice\n\n", invoices, len(groups))
	if len(groups) == 0 {
		return
	}

	for _, g := range groups {
		fmt.Fprintf(out, "%s  %s  (%d invoices, qty %s)\n", g.Code, g.CanonicalDescription, g.InvoiceCount, g.TotalQuantity.String())
		fmt.Fprintf(out, "  min %s  max %s  avg %s\n", unit(g.MinUnitCost), unit(g.MaxUnitCost), unit(g.AverageUnitCost))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NF-e\tEmitter\tCode\tDescription\tQty\tUnit\tFinal unit\t")
		for _, o := range g.Occurrences {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				o.InvoiceNumber, truncate(o.EmitterName, 30), o.Code, truncate(o.Description, 40),
				o.Quantity.String(), unit(o.UnitCost), unit(o.FinalUnitCost))
		}
		w.Flush()
		fmt.Fprintln(out)
	}
}
