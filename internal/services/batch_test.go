package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

func nfeXML(number, code string, qty, vProd, vFrete string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe3524010000000000000155001000000%s1000000000" versao="4.00">
      <ide><nNF>%s</nNF><serie>1</serie></ide>
      <emit><CNPJ>00000000000001</CNPJ><xNome>Fornecedor %s</xNome></emit>
      <det nItem="1">
        <prod><cProd>%s</cProd><xProd>PRODUTO %s</xProd><qCom>%s</qCom><vUnCom>1</vUnCom><vProd>%s</vProd></prod>
        <imposto></imposto>
      </det>
      <total><ICMSTot><vProd>%s</vProd><vFrete>%s</vFrete><vNF>%s</vNF></ICMSTot></total>
    </infNFe>
  </NFe>
</nfeProc>`, number, number, number, code, code, qty, vProd, vProd, vFrete, vProd))
}

func TestProcess_PartialFailure(t *testing.T) {
	docs := []RawDocument{
		{Source: "a.xml", Data: nfeXML("1", "001", "10", "100", "10")},
		{Source: "broken.xml", Data: []byte("not an invoice")},
		{Source: "nodet.xml", Data: []byte(`<NFe><infNFe><total><ICMSTot><vProd>1</vProd></ICMSTot></total></infNFe></NFe>`)},
		{Source: "b.xml", Data: nfeXML("2", "001", "5", "60", "0")},
	}

	p := NewBatchProcessor(NewAllocationEngine(""), 2, zap.NewNop())
	result := p.Process(context.Background(), docs)

	require.Len(t, result.Outcomes, 4)
	for i, o := range result.Outcomes {
		assert.Equal(t, docs[i].Source, o.Source)
	}

	assert.NoError(t, result.Outcomes[0].Err)
	assert.ErrorIs(t, result.Outcomes[1].Err, models.ErrUndecodableDocument)
	assert.ErrorIs(t, result.Outcomes[2].Err, models.ErrMalformedInvoice)
	assert.NoError(t, result.Outcomes[3].Err)
	assert.Len(t, result.Failed(), 2)

	invoices := result.Invoices()
	require.Len(t, invoices, 2)
	assertDecimal(t, "110", invoices[0].Totals.FinalTotalCost)
	assertDecimal(t, "11", invoices[0].Items[0].FinalUnitCost)
	assert.True(t, result.Outcomes[0].Consistency.Consistent)

	groups := NewMatcher().Match(invoices)
	require.Len(t, groups, 1)
	assertDecimal(t, "15", groups[0].TotalQuantity)
}

func TestProcess_DuplicateSource(t *testing.T) {
	data := nfeXML("1", "001", "1", "10", "0")
	docs := []RawDocument{
		{Source: "a.xml", Data: data},
		{Source: "a.xml", Data: data},
	}

	result := NewBatchProcessor(NewAllocationEngine(""), 4, nil).Process(context.Background(), docs)

	assert.NoError(t, result.Outcomes[0].Err)
	assert.True(t, errors.Is(result.Outcomes[1].Err, models.ErrDuplicateDocument))
	assert.Len(t, result.Invoices(), 1)
}

func TestProcess_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs := []RawDocument{
		{Source: "a.xml", Data: nfeXML("1", "001", "1", "10", "0")},
		{Source: "b.xml", Data: nfeXML("2", "001", "1", "10", "0")},
	}
	result := NewBatchProcessor(NewAllocationEngine(""), 1, nil).Process(ctx, docs)

	for _, o := range result.Outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Empty(t, result.Invoices())
	assert.Empty(t, result.Failed())
}

func TestProcess_Empty(t *testing.T) {
	result := NewBatchProcessor(NewAllocationEngine(""), 0, nil).Process(context.Background(), nil)

	assert.Empty(t, result.Outcomes)
	assert.Empty(t, result.Invoices())
}

func TestProcess_EmptyLineFreightIsProrated(t *testing.T) {
	data := []byte(`{"NFe":{"infNFe":{"@_Id":"NFe1",
		"det":[
			{"@_nItem":"1","prod":{"cProd":"A","qCom":1,"vProd":500,"vFrete":""}},
			{"@_nItem":"2","prod":{"cProd":"B","qCom":1,"vProd":500}}
		],
		"total":{"ICMSTot":{"vProd":1000,"vFrete":100}}}}}`)

	p := NewBatchProcessor(NewAllocationEngine(""), 1, zap.NewNop())
	result := p.Process(context.Background(), []RawDocument{{Source: "empty.json", Data: data}})

	invoices := result.Invoices()
	require.Len(t, invoices, 1)
	assertDecimal(t, "50", invoices[0].Items[0].Freight)
	assertDecimal(t, "50", invoices[0].Items[1].Freight)
	assertDecimal(t, "100", invoices[0].Totals.Freight)
}

func TestProcess_LoadFailureSettlesAsFailed(t *testing.T) {
	loadErr := errors.New("object not found")
	docs := []RawDocument{
		{Source: "a.xml", Data: nfeXML("1", "001", "10", "100", "0")},
		{Source: "gone.xml", Err: loadErr},
	}

	result := NewBatchProcessor(NewAllocationEngine(""), 2, zap.NewNop()).Process(context.Background(), docs)

	require.Len(t, result.Outcomes, 2)
	assert.NoError(t, result.Outcomes[0].Err)
	assert.ErrorIs(t, result.Outcomes[1].Err, loadErr)
	assert.Nil(t, result.Outcomes[1].Invoice)
	assert.Len(t, result.Failed(), 1)
}
