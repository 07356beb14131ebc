package services

import (
	"github.com/shopspring/decimal"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

var one = decimal.NewFromInt(1)

// AllocationEngine apportions header charges over the line items of an
// invoice and computes each line's landed cost
type AllocationEngine struct {
	policy string
}

// NewAllocationEngine creates an engine for the given policy. Anything other
// than models.PolicyAdditive selects models.PolicyExclusive.
func NewAllocationEngine(policy string) *AllocationEngine {
	if policy != models.PolicyAdditive {
		policy = models.PolicyExclusive
	}
	return &AllocationEngine{policy: policy}
}

// Policy returns the active allocation policy
func (e *AllocationEngine) Policy() string {
	return e.policy
}

// Allocate returns a copy of inv with every line allocated and the totals
// summed from those lines. The input invoice is not modified. A conversion
// factor already set on a line is kept and its converted cost recomputed.
func (e *AllocationEngine) Allocate(inv *models.Invoice) *models.Invoice {
	out := &models.Invoice{
		ID:     inv.ID,
		Source: inv.Source,
		Header: inv.Header,
		Items:  make([]models.AllocatedLineItem, len(inv.Items)),
	}

	for i, item := range inv.Items {
		out.Items[i] = e.allocateLine(inv.Header, item)
	}
	out.Totals = SumTotals(out.Items)

	return out
}

func (e *AllocationEngine) allocateLine(h models.InvoiceHeader, prev models.AllocatedLineItem) models.AllocatedLineItem {
	line := prev.LineItem
	a := models.AllocatedLineItem{LineItem: line}

	// Peso do item: zero quando o total de produtos e zero
	a.Weight = decimal.Zero
	if h.TotalProducts.IsPositive() {
		a.Weight = line.LineTotal.Div(h.TotalProducts)
	}

	a.Freight = e.resolve(line.StatedFreight, h.TotalFreight, line.LineTotal, h.TotalProducts)
	a.Insurance = e.resolve(line.StatedInsurance, h.TotalInsurance, line.LineTotal, h.TotalProducts)
	a.Discount = e.resolve(line.StatedDiscount, h.TotalDiscount, line.LineTotal, h.TotalProducts)
	a.Other = e.resolve(line.StatedOther, h.TotalOther, line.LineTotal, h.TotalProducts)

	a.FinalTotalCost = line.LineTotal.
		Add(line.IPI).
		Add(line.ICMSST).
		Add(a.Freight).
		Add(a.Insurance).
		Add(a.Other).
		Sub(a.Discount).
		Sub(line.PIS).
		Sub(line.COFINS)

	a.FinalUnitCost = decimal.Zero
	if line.Quantity.IsPositive() {
		a.FinalUnitCost = a.FinalTotalCost.Div(line.Quantity)
	}

	a.ConversionFactor = one
	if prev.ConversionFactor.IsPositive() {
		a.ConversionFactor = prev.ConversionFactor
	}
	a.ConvertedUnitCost = a.FinalUnitCost.Div(a.ConversionFactor)

	return a
}

// resolve applies the policy to one apportionable component. The prorated
// share is headerTotal*lineTotal/totalProducts, computed in that order so a
// single division is rounded.
func (e *AllocationEngine) resolve(stated *decimal.Decimal, headerTotal, lineTotal, totalProducts decimal.Decimal) decimal.Decimal {
	prorated := decimal.Zero
	if totalProducts.IsPositive() {
		prorated = headerTotal.Mul(lineTotal).Div(totalProducts)
	}

	if stated == nil {
		return prorated
	}
	if e.policy == models.PolicyAdditive {
		return stated.Add(prorated)
	}
	return *stated
}

// SumTotals sums every cost column over the given lines
func SumTotals(items []models.AllocatedLineItem) models.AllocationTotals {
	t := models.AllocationTotals{
		LineTotal:      decimal.Zero,
		IPI:            decimal.Zero,
		ICMSST:         decimal.Zero,
		Freight:        decimal.Zero,
		Insurance:      decimal.Zero,
		Discount:       decimal.Zero,
		Other:          decimal.Zero,
		PIS:            decimal.Zero,
		COFINS:         decimal.Zero,
		FinalTotalCost: decimal.Zero,
		GrossTotalCost: decimal.Zero,
	}
	for _, item := range items {
		t.LineTotal = t.LineTotal.Add(item.LineTotal)
		t.IPI = t.IPI.Add(item.IPI)
		t.ICMSST = t.ICMSST.Add(item.ICMSST)
		t.Freight = t.Freight.Add(item.Freight)
		t.Insurance = t.Insurance.Add(item.Insurance)
		t.Discount = t.Discount.Add(item.Discount)
		t.Other = t.Other.Add(item.Other)
		t.PIS = t.PIS.Add(item.PIS)
		t.COFINS = t.COFINS.Add(item.COFINS)
		t.FinalTotalCost = t.FinalTotalCost.Add(item.FinalTotalCost)
		t.GrossTotalCost = t.GrossTotalCost.Add(item.GrossTotalCost())
	}
	return t
}
