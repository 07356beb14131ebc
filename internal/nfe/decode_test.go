package nfe

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func TestDecode_NfeProcXML(t *testing.T) {
	doc, err := Decode(readFixture(t, "nfeproc.xml"))
	require.NoError(t, err)

	require.NotNil(t, doc.InfNFe)
	require.NotNil(t, doc.ProtNFe)
	assert.Equal(t, "35240112345678000199550010000012341000012345", doc.ProtNFe.InfProt.ChNFe.String())
	assert.Len(t, doc.InfNFe.Det, 2)
	assert.Equal(t, "2", doc.InfNFe.Det[1].NItem.String())
	assert.True(t, doc.InfNFe.Det[0].Prod.VFrete.IsSet())
	assert.False(t, doc.InfNFe.Det[0].Prod.VSeg.IsSet())
}

func TestDecode_BareNFe(t *testing.T) {
	data := []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe123"><det nItem="1"><prod><cProd>A</cProd></prod></det><total><ICMSTot><vProd>1.00</vProd></ICMSTot></total></infNFe></NFe>`)

	doc, err := Decode(data)
	require.NoError(t, err)

	require.NotNil(t, doc.InfNFe)
	assert.Nil(t, doc.ProtNFe)
	assert.Equal(t, "NFe123", doc.InfNFe.ID.String())
	assert.Equal(t, "A", doc.InfNFe.Det[0].Prod.CProd.String())
}

func TestDecode_Latin1(t *testing.T) {
	text := `<NFe><infNFe><emit><xNome>Comércio São João</xNome></emit></infNFe></NFe>`
	latin1, err := charmap.ISO8859_1.NewEncoder().String(text)
	require.NoError(t, err)

	t.Run("declared", func(t *testing.T) {
		data := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?>`), latin1...)
		doc, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, "Comércio São João", doc.InfNFe.Emit.XNome.String())
	})

	t.Run("undeclared", func(t *testing.T) {
		doc, err := Decode([]byte(latin1))
		require.NoError(t, err)
		assert.Equal(t, "Comércio São João", doc.InfNFe.Emit.XNome.String())
	})
}

func TestDecode_UTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<NFe><infNFe Id="NFe1"/></NFe>`)...)

	doc, err := Decode(data)
	require.NoError(t, err)
	assert.NotNil(t, doc.InfNFe)
}

func TestDecode_JSONSingleDet(t *testing.T) {
	doc, err := Decode(readFixture(t, "single_det.json"))
	require.NoError(t, err)

	require.NotNil(t, doc.InfNFe)
	require.Len(t, doc.InfNFe.Det, 1)
	assert.Equal(t, "5", doc.InfNFe.Det[0].Prod.QCom.String())
	assert.Equal(t, "555", doc.InfNFe.Ide.NNF.String())
}

func TestDecode_JSONDetArray(t *testing.T) {
	data := []byte(`{"NFe":{"infNFe":{"det":[{"prod":{"cProd":"1"}},{"prod":{"cProd":"2"}}],"total":{"ICMSTot":{"vProd":0}}}}}`)

	doc, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, doc.InfNFe.Det, 2)
	assert.Equal(t, "2", doc.InfNFe.Det[1].Prod.CProd.String())
}

func TestDecode_Undecodable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"plain text", "nota fiscal"},
		{"broken xml", "<NFe><infNFe>"},
		{"broken json", `{"nfeProc":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, models.ErrUndecodableDocument)
		})
	}
}

func TestValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"10.50", "10.5"},
		{"10,50", "10.5"},
		{" 3 ", "3"},
		{"abc", "0"},
		{"", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NewValue(tt.raw).Decimal().String())
		})
	}

	var absent Value
	assert.False(t, absent.IsSet())
	assert.Nil(t, absent.DecimalPtr())
	require.NotNil(t, NewValue("0").DecimalPtr())
	assert.True(t, NewValue("0").DecimalPtr().IsZero())
}
