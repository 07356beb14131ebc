package nfe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

// Normalize turns a decoded document into an Invoice with its line items in
// document order. Allocation fields are left zero. It fails with
// models.ErrMalformedInvoice when infNFe, det or ICMSTot are missing.
func Normalize(doc *Document, source string) (*models.Invoice, error) {
	if doc == nil || doc.InfNFe == nil {
		return nil, fmt.Errorf("%w: missing <infNFe>", models.ErrMalformedInvoice)
	}
	inf := doc.InfNFe

	if len(inf.Det) == 0 {
		return nil, fmt.Errorf("%w: missing <det>", models.ErrMalformedInvoice)
	}
	if inf.Total == nil || inf.Total.ICMSTot == nil {
		return nil, fmt.Errorf("%w: missing <ICMSTot>", models.ErrMalformedInvoice)
	}

	header := buildHeader(doc)

	items := make([]models.AllocatedLineItem, 0, len(inf.Det))
	for i, d := range inf.Det {
		items = append(items, models.AllocatedLineItem{LineItem: buildLineItem(d, i)})
	}

	id := header.AccessKey
	if id == "" {
		id = source
	}

	return &models.Invoice{
		ID:     id,
		Source: source,
		Header: header,
		Items:  items,
	}, nil
}

func buildHeader(doc *Document) models.InvoiceHeader {
	inf := doc.InfNFe
	tot := inf.Total.ICMSTot

	h := models.InvoiceHeader{
		TotalProducts:  tot.VProd.Decimal(),
		TotalFreight:   tot.VFrete.Decimal(),
		TotalInsurance: tot.VSeg.Decimal(),
		TotalDiscount:  tot.VDesc.Decimal(),
		TotalOther:     tot.VOutro.Decimal(),
		TotalICMSST:    tot.VST.Decimal(),
		TotalIPI:       tot.VIPI.Decimal(),
		TotalPIS:       tot.VPIS.Decimal(),
		TotalCOFINS:    tot.VCOFINS.Decimal(),
		TotalInvoice:   tot.VNF.Decimal(),
	}

	// Chave de acesso: protocolo primeiro, depois o Id do infNFe ("NFe" + chave)
	if doc.ProtNFe != nil {
		h.AccessKey = onlyDigits(doc.ProtNFe.InfProt.ChNFe.String())
	}
	if h.AccessKey == "" {
		h.AccessKey = onlyDigits(strings.TrimPrefix(inf.ID.String(), "NFe"))
	}

	if inf.Ide != nil {
		h.Number = inf.Ide.NNF.String()
		h.Series = inf.Ide.Serie.String()
		emissao := inf.Ide.DhEmi.String()
		if emissao == "" {
			emissao = inf.Ide.DEmi.String()
		}
		h.IssueDate = parseDate(emissao)
	}

	if inf.Emit != nil {
		h.EmitterName = inf.Emit.XNome.String()
		taxID := inf.Emit.CNPJ.String()
		if taxID == "" {
			taxID = inf.Emit.CPF.String()
		}
		h.EmitterTaxID = onlyDigits(taxID)
	}

	return h
}

func buildLineItem(d Det, index int) models.LineItem {
	item := models.LineItem{Position: index + 1}
	if n, err := strconv.Atoi(d.NItem.String()); err == nil && n > 0 {
		item.Position = n
	}

	if p := d.Prod; p != nil {
		item.Code = p.CProd.String()
		item.Description = p.XProd.String()
		item.EAN = p.CEAN.String()
		item.NCM = p.NCM.String()
		item.CFOP = p.CFOP.String()
		item.Unit = p.UCom.String()

		item.Quantity = p.QCom.Decimal()
		item.UnitCost = p.VUnCom.Decimal()
		item.LineTotal = p.VProd.Decimal()

		item.StatedFreight = p.VFrete.DecimalPtr()
		item.StatedInsurance = p.VSeg.DecimalPtr()
		item.StatedDiscount = p.VDesc.DecimalPtr()
		item.StatedOther = p.VOutro.DecimalPtr()
	}

	item.IPI = decimal.Zero
	item.ICMSST = decimal.Zero
	item.PIS = decimal.Zero
	item.COFINS = decimal.Zero
	if imp := d.Imposto; imp != nil {
		item.IPI = extractIPI(imp.IPI)
		item.ICMSST = extractICMSST(imp.ICMS)
		item.PIS = extractPIS(imp.PIS)
		item.COFINS = extractCOFINS(imp.COFINS)
	}

	return item
}

// extractICMSST returns vICMSST from the first ICMS group that states it
func extractICMSST(g *ICMS) decimal.Decimal {
	if g == nil {
		return decimal.Zero
	}
	groups := []*ICMSDetail{
		g.ICMS10, g.ICMS30, g.ICMS60, g.ICMS70, g.ICMS90, g.ICMSPart, g.ICMSST,
		g.ICMSSN201, g.ICMSSN202, g.ICMSSN500, g.ICMSSN900,
		g.ICMS00, g.ICMS20, g.ICMS40, g.ICMS51,
	}
	for _, detail := range groups {
		if detail != nil && detail.VICMSST.IsSet() {
			return detail.VICMSST.Decimal()
		}
	}
	return decimal.Zero
}

func extractIPI(i *IPI) decimal.Decimal {
	if i == nil || i.IPITrib == nil {
		return decimal.Zero
	}
	return i.IPITrib.VIPI.Decimal()
}

func extractPIS(p *PIS) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	for _, detail := range []*PISDetail{p.PISAliq, p.PISQtde, p.PISOutr, p.PISST, p.PISNT} {
		if detail != nil && detail.VPIS.IsSet() {
			return detail.VPIS.Decimal()
		}
	}
	return decimal.Zero
}

func extractCOFINS(c *COFINS) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	for _, detail := range []*COFINSDetail{c.COFINSAliq, c.COFINSQtde, c.COFINSOutr, c.COFINSST, c.COFINSNT} {
		if detail != nil && detail.VCOFINS.IsSet() {
			return detail.VCOFINS.Decimal()
		}
	}
	return decimal.Zero
}

// parseDate accepts dhEmi (RFC3339) and dEmi (YYYY-MM-DD)
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
