package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func line(position int, code, description, qty, total string) models.AllocatedLineItem {
	return models.AllocatedLineItem{LineItem: models.LineItem{
		Position:    position,
		Code:        code,
		Description: description,
		Quantity:    d(qty),
		LineTotal:   d(total),
		UnitCost:    d(total).Div(d(qty)),
	}}
}

func invoice(id, number, emitter string, items ...models.AllocatedLineItem) *models.Invoice {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	return &models.Invoice{
		ID:     id,
		Source: id + ".xml",
		Header: models.InvoiceHeader{
			Number:        number,
			EmitterName:   emitter,
			TotalProducts: total,
		},
		Items: items,
	}
}
