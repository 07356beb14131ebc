package nfe

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// xmlRoot matches both <nfeProc><NFe><infNFe> and a bare <NFe><infNFe>
type xmlRoot struct {
	XMLName xml.Name
	NFe     *struct {
		InfNFe *InfNFe `xml:"infNFe"`
	} `xml:"NFe"`
	InfNFe  *InfNFe  `xml:"infNFe"`
	ProtNFe *ProtNFe `xml:"protNFe"`
}

type jsonNFe struct {
	InfNFe *InfNFe `json:"infNFe"`
}

// jsonRoot is the tree shape produced by generic XML-to-JSON parsers
type jsonRoot struct {
	NfeProc *struct {
		NFe     *jsonNFe `json:"NFe"`
		ProtNFe *ProtNFe `json:"protNFe"`
	} `json:"nfeProc"`
	NFe *jsonNFe `json:"NFe"`
}

// Decode reads one NF-e document, either XML or an already parsed JSON tree.
// It does not check for mandatory nodes; Normalize does.
func Decode(data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", models.ErrUndecodableDocument)
	}

	switch trimmed[0] {
	case '{':
		return decodeJSON(trimmed)
	case '<':
		return decodeXML(trimmed)
	default:
		return nil, fmt.Errorf("%w: neither XML nor JSON", models.ErrUndecodableDocument)
	}
}

func decodeXML(data []byte) (*Document, error) {
	var r io.Reader = bytes.NewReader(data)

	// Files without an encoding declaration are often saved as Latin-1
	if !utf8.Valid(data) && !hasEncodingDecl(data) {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var root xmlRoot
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUndecodableDocument, err)
	}

	doc := &Document{ProtNFe: root.ProtNFe}
	switch root.XMLName.Local {
	case "nfeProc":
		if root.NFe != nil {
			doc.InfNFe = root.NFe.InfNFe
		}
	case "NFe":
		doc.InfNFe = root.InfNFe
	}
	return doc, nil
}

func decodeJSON(data []byte) (*Document, error) {
	var root jsonRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUndecodableDocument, err)
	}

	doc := &Document{}
	switch {
	case root.NfeProc != nil:
		doc.ProtNFe = root.NfeProc.ProtNFe
		if root.NfeProc.NFe != nil {
			doc.InfNFe = root.NfeProc.NFe.InfNFe
		}
	case root.NFe != nil:
		doc.InfNFe = root.NFe.InfNFe
	}
	return doc, nil
}

// charsetReader resolves declared encodings such as ISO-8859-1 or windows-1252
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func hasEncodingDecl(data []byte) bool {
	end := bytes.Index(data, []byte("?>"))
	if !bytes.HasPrefix(data, []byte("<?xml")) || end < 0 {
		return false
	}
	return bytes.Contains(data[:end], []byte("encoding"))
}
