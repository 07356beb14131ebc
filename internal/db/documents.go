package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// MaxDocumentIDs bounds a single GetDocuments call
const MaxDocumentIDs = 500

// Document is a stored NF-e as kept in {schema}.nfe_documentos
type Document struct {
	ID        string    `json:"id"`
	AccessKey string    `json:"chave"`
	FileName  string    `json:"nome_arquivo"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Source names the document in batch outcomes: the file name when known,
// then the access key, then the row id
func (d Document) Source() string {
	switch {
	case d.FileName != "":
		return d.FileName
	case d.AccessKey != "":
		return d.AccessKey
	default:
		return d.ID
	}
}

// GetDocuments loads the raw XML of the given document ids, in the order the
// ids were requested. Unknown ids are skipped.
func GetDocuments(ctx context.Context, empresaAlias string, ids []string) ([]Document, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}
	if len(ids) > MaxDocumentIDs {
		return nil, fmt.Errorf("too many document ids: %d (max %d)", len(ids), MaxDocumentIDs)
	}

	schema, err := GetSchemaForEmpresa(empresaAlias)
	if err != nil {
		return nil, err
	}
	table := pgx.Identifier{schema, "nfe_documentos"}.Sanitize()

	query := fmt.Sprintf(`
		SELECT id::text, COALESCE(chave, ''), COALESCE(nome_arquivo, ''), xml, created_at
		FROM %s
		WHERE id::text = ANY($1)
	`, table)

	rows, err := Pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Document, len(ids))
	for rows.Next() {
		var doc Document
		var xml string
		if err := rows.Scan(&doc.ID, &doc.AccessKey, &doc.FileName, &xml, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.Data = []byte(xml)
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
			delete(byID, id)
		}
	}
	return docs, nil
}
