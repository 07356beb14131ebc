package nfe

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"

	"github.com/shopspring/decimal"
)

// Document is a decoded NF-e tree. Every node is optional; the normalizer
// decides which ones are mandatory.
type Document struct {
	InfNFe  *InfNFe
	ProtNFe *ProtNFe
}

// Value is a leaf of the tree. It remembers whether the element was present,
// so a stated zero can be told apart from an absent field.
type Value struct {
	raw string
	set bool
}

// NewValue builds a present leaf, mostly for tests and adapters
func NewValue(raw string) Value {
	return Value{raw: raw, set: true}
}

// UnmarshalXML reads the element character data
func (v *Value) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	v.raw = s
	v.set = true
	return nil
}

// UnmarshalXMLAttr reads an attribute value
func (v *Value) UnmarshalXMLAttr(attr xml.Attr) error {
	v.raw = attr.Value
	v.set = true
	return nil
}

// UnmarshalJSON accepts strings, numbers and booleans. JSON trees produced by
// generic XML parsers turn numeric-looking text into numbers.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v.raw = s
	} else {
		v.raw = string(b)
	}
	v.set = true
	return nil
}

// IsSet reports whether the element was present
func (v Value) IsSet() bool {
	return v.set
}

// String returns the trimmed text
func (v Value) String() string {
	return strings.TrimSpace(v.raw)
}

// Decimal parses the leaf as a number. Absent or unparseable values are zero.
func (v Value) Decimal() decimal.Decimal {
	d, _ := v.parse()
	return d
}

// DecimalPtr returns the parsed value, or nil when the leaf is absent, empty
// or not a number: such an element states nothing
func (v Value) DecimalPtr() *decimal.Decimal {
	d, ok := v.parse()
	if !ok {
		return nil
	}
	return &d
}

func (v Value) parse() (decimal.Decimal, bool) {
	s := v.String()
	if !v.set || s == "" {
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

// ============================================================================
// infNFe
// ============================================================================

type InfNFe struct {
	ID    Value   `xml:"Id,attr" json:"@_Id"`
	Ide   *Ide    `xml:"ide" json:"ide"`
	Emit  *Emit   `xml:"emit" json:"emit"`
	Det   DetList `xml:"det" json:"det"`
	Total *Total  `xml:"total" json:"total"`
}

type Ide struct {
	NNF   Value `xml:"nNF" json:"nNF"`
	Serie Value `xml:"serie" json:"serie"`
	DhEmi Value `xml:"dhEmi" json:"dhEmi"` // 4.00
	DEmi  Value `xml:"dEmi" json:"dEmi"`   // 3.10 e anteriores
}

type Emit struct {
	CNPJ  Value `xml:"CNPJ" json:"CNPJ"`
	CPF   Value `xml:"CPF" json:"CPF"`
	XNome Value `xml:"xNome" json:"xNome"`
}

type Total struct {
	ICMSTot *ICMSTot `xml:"ICMSTot" json:"ICMSTot"`
}

type ICMSTot struct {
	VProd   Value `xml:"vProd" json:"vProd"`
	VFrete  Value `xml:"vFrete" json:"vFrete"`
	VSeg    Value `xml:"vSeg" json:"vSeg"`
	VDesc   Value `xml:"vDesc" json:"vDesc"`
	VOutro  Value `xml:"vOutro" json:"vOutro"`
	VST     Value `xml:"vST" json:"vST"`
	VIPI    Value `xml:"vIPI" json:"vIPI"`
	VPIS    Value `xml:"vPIS" json:"vPIS"`
	VCOFINS Value `xml:"vCOFINS" json:"vCOFINS"`
	VNF     Value `xml:"vNF" json:"vNF"`
}

type ProtNFe struct {
	InfProt struct {
		ChNFe Value `xml:"chNFe" json:"chNFe"`
	} `xml:"infProt" json:"infProt"`
}

// ============================================================================
// det / prod / imposto
// ============================================================================

// DetList is the list of line items. JSON trees carry a single item as a bare
// object instead of a one-element array; both shapes decode to a list.
type DetList []Det

// UnmarshalJSON accepts an object or an array of objects
func (l *DetList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '{' {
		var single Det
		if err := json.Unmarshal(b, &single); err != nil {
			return err
		}
		*l = DetList{single}
		return nil
	}
	var many []Det
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type Det struct {
	NItem   Value    `xml:"nItem,attr" json:"@_nItem"`
	Prod    *Prod    `xml:"prod" json:"prod"`
	Imposto *Imposto `xml:"imposto" json:"imposto"`
}

type Prod struct {
	CProd  Value `xml:"cProd" json:"cProd"`
	CEAN   Value `xml:"cEAN" json:"cEAN"`
	XProd  Value `xml:"xProd" json:"xProd"`
	NCM    Value `xml:"NCM" json:"NCM"`
	CFOP   Value `xml:"CFOP" json:"CFOP"`
	UCom   Value `xml:"uCom" json:"uCom"`
	QCom   Value `xml:"qCom" json:"qCom"`
	VUnCom Value `xml:"vUnCom" json:"vUnCom"`
	VProd  Value `xml:"vProd" json:"vProd"`
	VFrete Value `xml:"vFrete" json:"vFrete"`
	VSeg   Value `xml:"vSeg" json:"vSeg"`
	VDesc  Value `xml:"vDesc" json:"vDesc"`
	VOutro Value `xml:"vOutro" json:"vOutro"`
}

type Imposto struct {
	ICMS   *ICMS   `xml:"ICMS" json:"ICMS"`
	IPI    *IPI    `xml:"IPI" json:"IPI"`
	PIS    *PIS    `xml:"PIS" json:"PIS"`
	COFINS *COFINS `xml:"COFINS" json:"COFINS"`
}

// ICMS holds whichever CST/CSOSN group the emitter used
type ICMS struct {
	ICMS00    *ICMSDetail `xml:"ICMS00" json:"ICMS00"`
	ICMS10    *ICMSDetail `xml:"ICMS10" json:"ICMS10"`
	ICMS20    *ICMSDetail `xml:"ICMS20" json:"ICMS20"`
	ICMS30    *ICMSDetail `xml:"ICMS30" json:"ICMS30"`
	ICMS40    *ICMSDetail `xml:"ICMS40" json:"ICMS40"`
	ICMS51    *ICMSDetail `xml:"ICMS51" json:"ICMS51"`
	ICMS60    *ICMSDetail `xml:"ICMS60" json:"ICMS60"`
	ICMS70    *ICMSDetail `xml:"ICMS70" json:"ICMS70"`
	ICMS90    *ICMSDetail `xml:"ICMS90" json:"ICMS90"`
	ICMSPart  *ICMSDetail `xml:"ICMSPart" json:"ICMSPart"`
	ICMSST    *ICMSDetail `xml:"ICMSST" json:"ICMSST"`
	ICMSSN201 *ICMSDetail `xml:"ICMSSN201" json:"ICMSSN201"`
	ICMSSN202 *ICMSDetail `xml:"ICMSSN202" json:"ICMSSN202"`
	ICMSSN500 *ICMSDetail `xml:"ICMSSN500" json:"ICMSSN500"`
	ICMSSN900 *ICMSDetail `xml:"ICMSSN900" json:"ICMSSN900"`
}

type ICMSDetail struct {
	VBC     Value `xml:"vBC" json:"vBC"`
	VICMS   Value `xml:"vICMS" json:"vICMS"`
	VBCST   Value `xml:"vBCST" json:"vBCST"`
	VICMSST Value `xml:"vICMSST" json:"vICMSST"`
}

type IPI struct {
	IPITrib *struct {
		VIPI Value `xml:"vIPI" json:"vIPI"`
	} `xml:"IPITrib" json:"IPITrib"`
}

type PIS struct {
	PISAliq *PISDetail `xml:"PISAliq" json:"PISAliq"`
	PISQtde *PISDetail `xml:"PISQtde" json:"PISQtde"`
	PISNT   *PISDetail `xml:"PISNT" json:"PISNT"`
	PISOutr *PISDetail `xml:"PISOutr" json:"PISOutr"`
	PISST   *PISDetail `xml:"PISST" json:"PISST"`
}

type PISDetail struct {
	VPIS Value `xml:"vPIS" json:"vPIS"`
}

type COFINS struct {
	COFINSAliq *COFINSDetail `xml:"COFINSAliq" json:"COFINSAliq"`
	COFINSQtde *COFINSDetail `xml:"COFINSQtde" json:"COFINSQtde"`
	COFINSNT   *COFINSDetail `xml:"COFINSNT" json:"COFINSNT"`
	COFINSOutr *COFINSDetail `xml:"COFINSOutr" json:"COFINSOutr"`
	COFINSST   *COFINSDetail `xml:"COFINSST" json:"COFINSST"`
}

type COFINSDetail struct {
	VCOFINS Value `xml:"vCOFINS" json:"vCOFINS"`
}
