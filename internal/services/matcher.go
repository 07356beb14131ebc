package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

// GroupingCollaborator groups products whose descriptions name the same item
// even when their codes differ. ai.Grouper implements it.
type GroupingCollaborator interface {
	GroupSimilarProducts(ctx context.Context, items []models.ProductInput) ([]models.ProductGroup, error)
}

// Matcher finds products that recur across invoices
type Matcher struct{}

// NewMatcher creates a new matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match groups line items by exact product code and returns the groups that
// appear in more than one invoice. The result does not depend on the order of
// the input slice.
func (m *Matcher) Match(invoices []*models.Invoice) []models.ComparisonGroup {
	ordered := sortInvoices(invoices)

	index := make(map[string]int)
	var groups []*models.ComparisonGroup

	for _, inv := range ordered {
		for _, item := range inv.Items {
			i, ok := index[item.Code]
			if !ok {
				i = len(groups)
				index[item.Code] = i
				groups = append(groups, &models.ComparisonGroup{
					Code:                 item.Code,
					CanonicalDescription: item.Description,
					TotalQuantity:        decimal.Zero,
				})
			}
			g := groups[i]
			g.Occurrences = append(g.Occurrences, newOccurrence(inv, item))
			g.TotalQuantity = g.TotalQuantity.Add(item.Quantity)
		}
	}

	return finalizeGroups(groups)
}

// MatchWithGrouping lets the collaborator decide which items are the same
// product. When the collaborator fails, the exact-code result is returned
// together with the collaborator error, so callers can report the fallback.
func (m *Matcher) MatchWithGrouping(ctx context.Context, invoices []*models.Invoice, grouper GroupingCollaborator) ([]models.ComparisonGroup, error) {
	if grouper == nil {
		return m.Match(invoices), nil
	}

	ordered := sortInvoices(invoices)
	inputs, pool := flattenProducts(ordered)
	if len(inputs) == 0 {
		return []models.ComparisonGroup{}, nil
	}

	productGroups, err := grouper.GroupSimilarProducts(ctx, inputs)
	if err != nil {
		return m.Match(invoices), fmt.Errorf("product grouping failed, using exact code matching: %w", err)
	}

	groups := make([]*models.ComparisonGroup, 0, len(productGroups))
	for _, pg := range productGroups {
		if len(pg.Items) == 0 {
			continue
		}
		g := &models.ComparisonGroup{
			Code:                 groupCode(pg.Items),
			CanonicalDescription: pg.CanonicalDescription,
			TotalQuantity:        decimal.Zero,
		}
		if g.CanonicalDescription == "" {
			g.CanonicalDescription = pg.Items[0].Description
		}
		for _, p := range pg.Items {
			occ := pool.take(p)
			g.Occurrences = append(g.Occurrences, occ)
			g.TotalQuantity = g.TotalQuantity.Add(occ.Quantity)
		}
		groups = append(groups, g)
	}

	return finalizeGroups(groups), nil
}

// ProductInputs flattens invoices into the shape sent to a grouping
// collaborator, in the same order Match walks them
func ProductInputs(invoices []*models.Invoice) []models.ProductInput {
	inputs, _ := flattenProducts(sortInvoices(invoices))
	return inputs
}

func sortInvoices(invoices []*models.Invoice) []*models.Invoice {
	ordered := make([]*models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv != nil {
			ordered = append(ordered, inv)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Header.Number != b.Header.Number {
			return a.Header.Number < b.Header.Number
		}
		if a.Header.EmitterName != b.Header.EmitterName {
			return a.Header.EmitterName < b.Header.EmitterName
		}
		return a.Source < b.Source
	})
	return ordered
}

func newOccurrence(inv *models.Invoice, item models.AllocatedLineItem) models.Occurrence {
	return models.Occurrence{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Header.Number,
		EmitterName:   inv.Header.EmitterName,
		Code:          item.Code,
		Description:   item.Description,
		Quantity:      item.Quantity,
		UnitCost:      item.UnitCost,
		FinalUnitCost: item.FinalUnitCost,
	}
}

// finalizeGroups drops single-invoice groups, fills the cost statistics and
// sorts by invoice count desc, description asc, code asc
func finalizeGroups(groups []*models.ComparisonGroup) []models.ComparisonGroup {
	out := make([]models.ComparisonGroup, 0, len(groups))
	for _, g := range groups {
		g.InvoiceCount = distinctInvoices(g.Occurrences)
		if !g.Reportable() {
			continue
		}
		fillStats(g)
		out = append(out, *g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InvoiceCount != out[j].InvoiceCount {
			return out[i].InvoiceCount > out[j].InvoiceCount
		}
		if out[i].CanonicalDescription != out[j].CanonicalDescription {
			return out[i].CanonicalDescription < out[j].CanonicalDescription
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func distinctInvoices(occs []models.Occurrence) int {
	seen := make(map[string]struct{}, len(occs))
	for _, o := range occs {
		seen[o.InvoiceID] = struct{}{}
	}
	return len(seen)
}

// fillStats sets min, max and quantity-weighted average final unit cost
func fillStats(g *models.ComparisonGroup) {
	g.MinUnitCost = decimal.Zero
	g.MaxUnitCost = decimal.Zero
	g.AverageUnitCost = decimal.Zero
	if len(g.Occurrences) == 0 {
		return
	}

	weighted := decimal.Zero
	qty := decimal.Zero
	for i, o := range g.Occurrences {
		if i == 0 || o.FinalUnitCost.LessThan(g.MinUnitCost) {
			g.MinUnitCost = o.FinalUnitCost
		}
		if i == 0 || o.FinalUnitCost.GreaterThan(g.MaxUnitCost) {
			g.MaxUnitCost = o.FinalUnitCost
		}
		weighted = weighted.Add(o.FinalUnitCost.Mul(o.Quantity))
		qty = qty.Add(o.Quantity)
	}
	if qty.IsPositive() {
		g.AverageUnitCost = weighted.Div(qty)
	}
}

// groupCode is the code of the group's first item. Items grouped by
// description may carry different codes; the collaborator's order decides.
func groupCode(items []models.ProductInput) string {
	return items[0].Code
}

type occurrenceKey struct {
	nfeID       string
	code        string
	description string
}

// occurrencePool maps collaborator items back to the exact occurrences they
// were built from, so decimal values survive the float round trip
type occurrencePool map[occurrenceKey][]models.Occurrence

func flattenProducts(ordered []*models.Invoice) ([]models.ProductInput, occurrencePool) {
	var inputs []models.ProductInput
	pool := make(occurrencePool)

	for _, inv := range ordered {
		for _, item := range inv.Items {
			occ := newOccurrence(inv, item)
			key := occurrenceKey{nfeID: inv.ID, code: item.Code, description: item.Description}
			pool[key] = append(pool[key], occ)

			inputs = append(inputs, models.ProductInput{
				Code:        item.Code,
				Description: item.Description,
				Quantity:    item.Quantity.InexactFloat64(),
				UnitCost:    item.FinalUnitCost.InexactFloat64(),
				NfeID:       inv.ID,
				NfeNumber:   inv.Header.Number,
				EmitterName: inv.Header.EmitterName,
			})
		}
	}
	return inputs, pool
}

func (p occurrencePool) take(in models.ProductInput) models.Occurrence {
	key := occurrenceKey{nfeID: in.NfeID, code: in.Code, description: in.Description}
	if list := p[key]; len(list) > 0 {
		p[key] = list[1:]
		return list[0]
	}

	// Item not produced by us; keep what the collaborator sent
	return models.Occurrence{
		InvoiceID:     in.NfeID,
		InvoiceNumber: in.NfeNumber,
		EmitterName:   in.EmitterName,
		Code:          in.Code,
		Description:   in.Description,
		Quantity:      decimal.NewFromFloat(in.Quantity),
		UnitCost:      decimal.NewFromFloat(in.UnitCost),
		FinalUnitCost: decimal.NewFromFloat(in.UnitCost),
	}
}
