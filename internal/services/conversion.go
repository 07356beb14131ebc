package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

// ParseConversionFactor reads a units-per-purchase-unit factor from user
// input. Anything that does not parse to a strictly positive number yields 1.
// Decimal commas ("12,5") are accepted.
func ParseConversionFactor(raw any) decimal.Decimal {
	var d decimal.Decimal

	switch v := raw.(type) {
	case nil:
		return one
	case decimal.Decimal:
		d = v
	case *decimal.Decimal:
		if v == nil {
			return one
		}
		d = *v
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case json.Number:
		parsed, ok := parseFactorString(v.String())
		if !ok {
			return one
		}
		d = parsed
	case string:
		parsed, ok := parseFactorString(v)
		if !ok {
			return one
		}
		d = parsed
	default:
		parsed, ok := parseFactorString(fmt.Sprint(v))
		if !ok {
			return one
		}
		d = parsed
	}

	if !d.IsPositive() {
		return one
	}
	return d
}

func parseFactorString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ApplyConversion sets the conversion factor on an allocated line and
// recomputes its converted unit cost. No other field changes.
func ApplyConversion(item models.AllocatedLineItem, raw any) models.AllocatedLineItem {
	item.ConversionFactor = ParseConversionFactor(raw)
	item.ConvertedUnitCost = item.FinalUnitCost.Div(item.ConversionFactor)
	return item
}

// ConvertInvoiceLine applies a conversion factor to the line at the given
// nItem position and returns the updated invoice. Totals are unaffected.
func ConvertInvoiceLine(inv *models.Invoice, position int, raw any) (*models.Invoice, error) {
	out := *inv
	out.Items = make([]models.AllocatedLineItem, len(inv.Items))
	copy(out.Items, inv.Items)

	for i, item := range out.Items {
		if item.Position == position {
			out.Items[i] = ApplyConversion(item, raw)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("line item %d not found in invoice %s", position, inv.ID)
}
