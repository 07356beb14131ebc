package services

import (
	"github.com/shopspring/decimal"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

// ConsistencyWarning is a header total that does not match its line items
type ConsistencyWarning struct {
	Field    string          `json:"field"`
	Code     string          `json:"code"`
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
	Message  string          `json:"message"`
}

// ConsistencyResult is the response from a consistency check
type ConsistencyResult struct {
	Consistent bool                 `json:"consistent"`
	Warnings   []ConsistencyWarning `json:"warnings"`
}

// ConsistencyChecker cross-checks ICMSTot against the sum of the det entries.
// It never rejects a document; allocation runs on whatever was stated.
type ConsistencyChecker struct {
	tolerance decimal.Decimal // absolute, in BRL
}

// NewConsistencyChecker creates a checker with a one cent tolerance
func NewConsistencyChecker() *ConsistencyChecker {
	return &ConsistencyChecker{tolerance: decimal.New(1, -2)}
}

// Check runs every cross-check on a normalized invoice
func (c *ConsistencyChecker) Check(inv *models.Invoice) *ConsistencyResult {
	result := &ConsistencyResult{
		Consistent: true,
		Warnings:   []ConsistencyWarning{},
	}
	h := inv.Header

	var lineTotal, ipi, st, pis, cofins decimal.Decimal
	for _, item := range inv.Items {
		lineTotal = lineTotal.Add(item.LineTotal)
		ipi = ipi.Add(item.IPI)
		st = st.Add(item.ICMSST)
		pis = pis.Add(item.PIS)
		cofins = cofins.Add(item.COFINS)
	}

	// 1. Produtos
	c.compare(result, "vProd", "products_mismatch", h.TotalProducts, lineTotal,
		"Soma de vProd dos itens difere do total de produtos")

	// 2. Impostos somados ao custo
	c.compare(result, "vIPI", "ipi_mismatch", h.TotalIPI, ipi,
		"Soma do IPI dos itens difere do vIPI do cabecalho")
	c.compare(result, "vST", "icms_st_mismatch", h.TotalICMSST, st,
		"Soma do ICMS-ST dos itens difere do vST do cabecalho")

	// 3. Creditos
	c.compare(result, "vPIS", "pis_mismatch", h.TotalPIS, pis,
		"Soma do PIS dos itens difere do vPIS do cabecalho")
	c.compare(result, "vCOFINS", "cofins_mismatch", h.TotalCOFINS, cofins,
		"Soma do COFINS dos itens difere do vCOFINS do cabecalho")

	// 4. Valores rateaveis informados em todos os itens
	c.compareStated(result, inv, "vFrete", "freight_mismatch", h.TotalFreight,
		func(l models.LineItem) *decimal.Decimal { return l.StatedFreight },
		"Frete informado nos itens difere do vFrete do cabecalho")
	c.compareStated(result, inv, "vSeg", "insurance_mismatch", h.TotalInsurance,
		func(l models.LineItem) *decimal.Decimal { return l.StatedInsurance },
		"Seguro informado nos itens difere do vSeg do cabecalho")
	c.compareStated(result, inv, "vDesc", "discount_mismatch", h.TotalDiscount,
		func(l models.LineItem) *decimal.Decimal { return l.StatedDiscount },
		"Desconto informado nos itens difere do vDesc do cabecalho")
	c.compareStated(result, inv, "vOutro", "other_mismatch", h.TotalOther,
		func(l models.LineItem) *decimal.Decimal { return l.StatedOther },
		"Outras despesas informadas nos itens diferem do vOutro do cabecalho")

	// 5. Sem base de rateio
	if !h.TotalProducts.IsPositive() && h.TotalFreight.Add(h.TotalInsurance).Add(h.TotalOther).Add(h.TotalDiscount).IsPositive() {
		result.Warnings = append(result.Warnings, ConsistencyWarning{
			Field:    "vProd",
			Code:     "no_allocation_base",
			Expected: decimal.Zero,
			Actual:   h.TotalProducts,
			Message:  "Total de produtos zerado; frete, seguro e despesas nao foram rateados",
		})
	}

	result.Consistent = len(result.Warnings) == 0
	return result
}

func (c *ConsistencyChecker) compare(result *ConsistencyResult, field, code string, expected, actual decimal.Decimal, message string) {
	if expected.Sub(actual).Abs().GreaterThan(c.tolerance) {
		result.Warnings = append(result.Warnings, ConsistencyWarning{
			Field:    field,
			Code:     code,
			Expected: expected,
			Actual:   actual,
			Message:  message,
		})
	}
}

// compareStated only checks a component when every line states it
func (c *ConsistencyChecker) compareStated(result *ConsistencyResult, inv *models.Invoice, field, code string, expected decimal.Decimal, stated func(models.LineItem) *decimal.Decimal, message string) {
	if len(inv.Items) == 0 {
		return
	}
	sum := decimal.Zero
	for _, item := range inv.Items {
		v := stated(item.LineItem)
		if v == nil {
			return
		}
		sum = sum.Add(*v)
	}
	c.compare(result, field, code, expected, sum, message)
}
