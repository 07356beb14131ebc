package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/services"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var factors []string
	var gross bool

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Print the landed cost of every line item",
		Long: `Decodes each NF-e, apportions header charges over its line items and prints
one table per invoice with the totals and any consistency warnings.

--factor CODE=N divides the final unit cost of product CODE by N, for
products bought in boxes and sold by the unit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFactors(factors)
			if err != nil {
				return err
			}

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

			for _, o := range result.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(out, "%s: %v\n\n", o.Source, o.Err)
					continue
				}
				inv := applyFactors(o.Invoice, parsed)
				printInvoice(out, inv, o.Consistency, gross)
			}

			if failed := result.Failed(); len(failed) == len(result.Outcomes) {
				return errors.New("no document could be analyzed")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&factors, "factor", nil, "Conversion factor as CODE=N (repeatable)")
	cmd.Flags().BoolVar(&gross, "gross", false, "Also show costs without PIS/COFINS credit")
	return cmd
}

// parseFactors reads CODE=N pairs. N is parsed leniently: anything that is
// not a positive number becomes 1.
func parseFactors(raw []string) (map[string]string, error) {
	factors := make(map[string]string, len(raw))
	for _, r := range raw {
		code, value, ok := strings.Cut(r, "=")
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid --factor %q, expected CODE=N", r)
		}
		factors[code] = value
	}
	return factors, nil
}

func applyFactors(inv *models.Invoice, factors map[string]string) *models.Invoice {
	if len(factors) == 0 {
		return inv
	}
	for _, item := range inv.Items {
		raw, ok := factors[item.Code]
		if !ok {
			continue
		}
		if converted, err := services.ConvertInvoiceLine(inv, item.Position, raw); err == nil {
			inv = converted
		}
	}
	return inv
}

func printInvoice(out io.Writer, inv *models.Invoice, check *services.ConsistencyResult, gross bool) {
	h := inv.Header
	fmt.Fprintf(out, "NF-e %s  serie %s  %s (%s)\n", h.Number, h.Series, h.EmitterName, h.EmitterTaxID)
	fmt.Fprintf(out, "Source: %s  Key: %s\n", inv.Source, inv.ID)
	fmt.Fprintf(out, "Products %s  Invoice %s  Gross %s\n\n",
		money(h.TotalProducts), money(h.TotalInvoice), money(h.GrossValue()))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := "#\tCode\tDescription\tQty\tvProd\tIPI\tICMS-ST\tFreight\tIns.\tDisc.\tOther\tPIS\tCOFINS\tFinal\tUnit\tFactor\tConverted\t"
	if gross {
		header += "Gross\tGross unit\t"
	}
	fmt.Fprintln(w, header)

	for _, it := range inv.Items {
		row := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t",
			it.Position, it.Code, truncate(it.Description, 40), it.Quantity.String(),
			money(it.LineTotal), money(it.IPI), money(it.ICMSST),
			money(it.Freight), money(it.Insurance), money(it.Discount), money(it.Other),
			money(it.PIS), money(it.COFINS),
			money(it.FinalTotalCost), unit(it.FinalUnitCost),
			it.ConversionFactor.String(), unit(it.ConvertedUnitCost),
		)
		if gross {
			row += fmt.Sprintf("%s\t%s\t", money(it.GrossTotalCost()), unit(it.GrossUnitCost()))
		}
		fmt.Fprintln(w, row)
	}

	t := inv.Totals
	totals := fmt.Sprintf("\tTotal\t\t\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\t\t\t",
		money(t.LineTotal), money(t.IPI), money(t.ICMSST),
		money(t.Freight), money(t.Insurance), money(t.Discount), money(t.Other),
		money(t.PIS), money(t.COFINS), money(t.FinalTotalCost),
	)
	if gross {
		totals += fmt.Sprintf("%s\t\t", money(t.GrossTotalCost))
	}
	fmt.Fprintln(w, totals)
	w.Flush()

	if check != nil && !check.Consistent {
		fmt.Fprintln(out, "\nWarnings:")
		for _, warn := range check.Warnings {
			fmt.Fprintf(out, "  [%s] %s (header %s, items %s)\n",
				warn.Code, warn.Message, money(warn.Expected), money(warn.Actual))
		}
	}
	fmt.Fprintln(out)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func unit(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
