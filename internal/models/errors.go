package models

import "errors"

var (
	// ErrMalformedInvoice is returned when a document lacks infNFe, det or ICMSTot
	ErrMalformedInvoice = errors.New("malformed invoice")

	// ErrUndecodableDocument is returned when the raw bytes are neither NF-e XML nor a JSON tree
	ErrUndecodableDocument = errors.New("undecodable document")

	// ErrDuplicateDocument marks a document whose source was already loaded in the same batch
	ErrDuplicateDocument = errors.New("duplicate document")
)
