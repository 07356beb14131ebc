package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceHeader holds the NF-e identification block and the ICMSTot totals
type InvoiceHeader struct {
	// Identificacao
	AccessKey string    `json:"accessKey,omitempty"` // Chave de acesso (44 digitos)
	Number    string    `json:"number"`              // nNF
	Series    string    `json:"series,omitempty"`    // serie
	IssueDate time.Time `json:"issueDate,omitempty"` // dhEmi / dEmi

	// Emitente
	EmitterName  string `json:"emitterName"`  // emit/xNome
	EmitterTaxID string `json:"emitterTaxId"` // emit/CNPJ ou CPF, so digitos

	// Totais (ICMSTot)
	TotalProducts  decimal.Decimal `json:"totalProducts"`  // vProd
	TotalFreight   decimal.Decimal `json:"totalFreight"`   // vFrete
	TotalInsurance decimal.Decimal `json:"totalInsurance"` // vSeg
	TotalDiscount  decimal.Decimal `json:"totalDiscount"`  // vDesc
	TotalOther     decimal.Decimal `json:"totalOther"`     // vOutro
	TotalICMSST    decimal.Decimal `json:"totalIcmsSt"`    // vST
	TotalIPI       decimal.Decimal `json:"totalIpi"`       // vIPI
	TotalPIS       decimal.Decimal `json:"totalPis"`       // vPIS
	TotalCOFINS    decimal.Decimal `json:"totalCofins"`    // vCOFINS
	TotalInvoice   decimal.Decimal `json:"totalInvoice"`   // vNF
}

// GrossValue is the invoice value before discounts: products plus freight,
// insurance, other expenses, ICMS-ST and IPI.
func (h InvoiceHeader) GrossValue() decimal.Decimal {
	return h.TotalProducts.
		Add(h.TotalFreight).
		Add(h.TotalInsurance).
		Add(h.TotalOther).
		Add(h.TotalICMSST).
		Add(h.TotalIPI)
}

// LineItem is one det/prod entry as stated in the document
type LineItem struct {
	Position    int    `json:"position"`       // nItem
	Code        string `json:"code"`           // cProd
	Description string `json:"description"`    // xProd
	EAN         string `json:"ean,omitempty"`  // cEAN
	NCM         string `json:"ncm,omitempty"`  // NCM
	CFOP        string `json:"cfop,omitempty"` // CFOP
	Unit        string `json:"unit,omitempty"` // uCom

	Quantity  decimal.Decimal `json:"quantity"`  // qCom
	UnitCost  decimal.Decimal `json:"unitCost"`  // vUnCom
	LineTotal decimal.Decimal `json:"lineTotal"` // vProd

	// Impostos do item, zero quando ausentes
	IPI    decimal.Decimal `json:"ipi"`
	ICMSST decimal.Decimal `json:"icmsSt"`
	PIS    decimal.Decimal `json:"pis"`
	COFINS decimal.Decimal `json:"cofins"`

	// Valores rateaveis informados no proprio item (nil = nao informado)
	StatedFreight   *decimal.Decimal `json:"statedFreight,omitempty"`   // vFrete
	StatedInsurance *decimal.Decimal `json:"statedInsurance,omitempty"` // vSeg
	StatedDiscount  *decimal.Decimal `json:"statedDiscount,omitempty"`  // vDesc
	StatedOther     *decimal.Decimal `json:"statedOther,omitempty"`     // vOutro
}

// AllocatedLineItem is a LineItem with its apportioned charges and landed cost
type AllocatedLineItem struct {
	LineItem

	Weight    decimal.Decimal `json:"weight"`
	Freight   decimal.Decimal `json:"freight"`
	Insurance decimal.Decimal `json:"insurance"`
	Discount  decimal.Decimal `json:"discount"`
	Other     decimal.Decimal `json:"other"`

	FinalTotalCost decimal.Decimal `json:"finalTotalCost"`
	FinalUnitCost  decimal.Decimal `json:"finalUnitCost"`

	ConversionFactor  decimal.Decimal `json:"conversionFactor"`
	ConvertedUnitCost decimal.Decimal `json:"convertedUnitCost"`
}

// GrossTotalCost is the landed cost without taking PIS/COFINS credit
func (a AllocatedLineItem) GrossTotalCost() decimal.Decimal {
	return a.FinalTotalCost.Add(a.PIS).Add(a.COFINS)
}

// GrossUnitCost is GrossTotalCost per unit, zero when quantity is zero
func (a AllocatedLineItem) GrossUnitCost() decimal.Decimal {
	if !a.Quantity.IsPositive() {
		return decimal.Zero
	}
	return a.GrossTotalCost().Div(a.Quantity)
}

// AllocationTotals are the column sums over every allocated line
type AllocationTotals struct {
	LineTotal      decimal.Decimal `json:"lineTotal"`
	IPI            decimal.Decimal `json:"ipi"`
	ICMSST         decimal.Decimal `json:"icmsSt"`
	Freight        decimal.Decimal `json:"freight"`
	Insurance      decimal.Decimal `json:"insurance"`
	Discount       decimal.Decimal `json:"discount"`
	Other          decimal.Decimal `json:"other"`
	PIS            decimal.Decimal `json:"pis"`
	COFINS         decimal.Decimal `json:"cofins"`
	FinalTotalCost decimal.Decimal `json:"finalTotalCost"`
	GrossTotalCost decimal.Decimal `json:"grossTotalCost"` // sem credito de PIS/COFINS
}

// Invoice is one normalized NF-e. Items carry allocation results once the
// AllocationEngine has run over it.
type Invoice struct {
	ID     string              `json:"id"`
	Source string              `json:"source"`
	Header InvoiceHeader       `json:"header"`
	Items  []AllocatedLineItem `json:"items"`
	Totals AllocationTotals    `json:"totals"`
}

// Occurrence is one appearance of a product in one invoice
type Occurrence struct {
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	EmitterName   string          `json:"emitterName"`
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	FinalUnitCost decimal.Decimal `json:"finalUnitCost"`
}

// ComparisonGroup collects the occurrences of one product across invoices
type ComparisonGroup struct {
	Code                 string          `json:"code"`
	CanonicalDescription string          `json:"canonicalDescription"`
	TotalQuantity        decimal.Decimal `json:"totalQuantity"`
	InvoiceCount         int             `json:"invoiceCount"`
	Occurrences          []Occurrence    `json:"occurrences"`

	MinUnitCost     decimal.Decimal `json:"minUnitCost"`
	MaxUnitCost     decimal.Decimal `json:"maxUnitCost"`
	AverageUnitCost decimal.Decimal `json:"averageUnitCost"` // ponderado pela quantidade
}

// Reportable reports whether the group spans at least two invoices
func (g ComparisonGroup) Reportable() bool {
	return g.InvoiceCount >= 2
}

// ProductInput is the item shape exchanged with a product grouping service
type ProductInput struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unitCost"`
	NfeID       string  `json:"nfeId"`
	NfeNumber   string  `json:"nfeNumber"`
	EmitterName string  `json:"emitterName"`
}

// ProductGroup is one group returned by a product grouping service
type ProductGroup struct {
	CanonicalDescription string         `json:"canonicalDescription"`
	Items                []ProductInput `json:"items"`
}
