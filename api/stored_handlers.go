package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/auth"
	"github.com/custonfe/nfe-cost-service/internal/db"
	"github.com/custonfe/nfe-cost-service/internal/services"
	"github.com/custonfe/nfe-cost-service/internal/storage"
)

// StoredRequest selects documents kept by the platform: database rows by id,
// MinIO objects by name, or every object under a prefix
type StoredRequest struct {
	IDs     []string `json:"ids,omitempty"`
	Objects []string `json:"objects,omitempty"`
	Prefix  *string  `json:"prefix,omitempty"`

	// compare only
	Grouping   string `json:"grouping,omitempty"`
	AIProvider string `json:"aiProvider,omitempty"`
	AIModel    string `json:"aiModel,omitempty"`
}

// AnalyzeStored allocates documents loaded from PostgreSQL or MinIO
func (h *Handler) AnalyzeStored(w http.ResponseWriter, r *http.Request) {
	_, docs, ok := h.loadStored(w, r)
	if !ok {
		return
	}
	h.analyze(w, r, docs)
}

// CompareStored compares documents loaded from PostgreSQL or MinIO
func (h *Handler) CompareStored(w http.ResponseWriter, r *http.Request) {
	req, docs, ok := h.loadStored(w, r)
	if !ok {
		return
	}
	h.compare(w, r, docs, compareOptions{
		grouping: req.Grouping,
		provider: req.AIProvider,
		model:    req.AIModel,
	})
}

// ListStoredObjects lists the NF-e objects of the caller's empresa
func (h *Handler) ListStoredObjects(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.GetClaimsFromContext(r.Context())
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
		return
	}

	names, err := storage.ListDocuments(r.Context(), claims.EmpresaAlias, r.URL.Query().Get("prefix"))
	if errors.Is(err, storage.ErrNoStorage) {
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}
	if err != nil {
		h.requestLogger(r).Error("Failed to list objects", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"objects": names,
		"total":   len(names),
	})
}

// loadStored parses the request body and fetches the selected documents.
// It writes the error response itself and reports false when it did.
func (h *Handler) loadStored(w http.ResponseWriter, r *http.Request) (*StoredRequest, []services.RawDocument, bool) {
	claims, err := auth.GetClaimsFromContext(r.Context())
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized: "+err.Error())
		return nil, nil, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req StoredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return nil, nil, false
	}

	sources := 0
	if len(req.IDs) > 0 {
		sources++
	}
	if len(req.Objects) > 0 {
		sources++
	}
	if req.Prefix != nil {
		sources++
	}
	if sources != 1 {
		h.sendError(w, http.StatusBadRequest, "provide exactly one of ids, objects or prefix")
		return nil, nil, false
	}

	ctx := r.Context()
	log := h.requestLogger(r)
	maxBytes := int64(h.config.Upload.MaxSizeMB) * 1024 * 1024

	var docs []services.RawDocument
	switch {
	case len(req.IDs) > 0:
		if len(req.IDs) > h.config.Batch.MaxDocuments {
			h.sendError(w, http.StatusBadRequest, fmt.Sprintf("too many documents (max %d)", h.config.Batch.MaxDocuments))
			return nil, nil, false
		}
		rows, err := db.GetDocuments(ctx, claims.EmpresaAlias, req.IDs)
		if errors.Is(err, db.ErrNoDatabase) {
			h.sendError(w, http.StatusServiceUnavailable, "database not available")
			return nil, nil, false
		}
		if err != nil {
			log.Error("Failed to load documents", zap.Error(err))
			h.sendError(w, http.StatusInternalServerError, "failed to load documents")
			return nil, nil, false
		}
		for _, row := range rows {
			docs = append(docs, services.RawDocument{Source: row.Source(), Data: row.Data})
		}

	default:
		names := req.Objects
		if req.Prefix != nil {
			names, err = storage.ListDocuments(ctx, claims.EmpresaAlias, *req.Prefix)
			if err != nil {
				h.sendStorageError(w, r, err)
				return nil, nil, false
			}
		}
		if len(names) > h.config.Batch.MaxDocuments {
			h.sendError(w, http.StatusBadRequest, fmt.Sprintf("too many documents (max %d)", h.config.Batch.MaxDocuments))
			return nil, nil, false
		}
		for _, name := range names {
			data, err := h.fetchObject(ctx, claims.EmpresaAlias, name, maxBytes)
			if errors.Is(err, storage.ErrNoStorage) {
				h.sendStorageError(w, r, err)
				return nil, nil, false
			}
			if err != nil {
				// Settled as a failed document, like a broken upload
				log.Warn("Failed to fetch document", zap.String("object", name), zap.Error(err))
				docs = append(docs, services.RawDocument{Source: name, Err: err})
				continue
			}
			docs = append(docs, services.RawDocument{Source: name, Data: data})
		}
	}

	if len(docs) == 0 {
		h.sendError(w, http.StatusNotFound, "no documents found")
		return nil, nil, false
	}
	return &req, docs, true
}

func (h *Handler) sendStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNoStorage):
		h.sendError(w, http.StatusServiceUnavailable, "storage not available")
	default:
		h.requestLogger(r).Error("Failed to fetch documents", zap.Error(err))
		h.sendError(w, http.StatusBadGateway, "failed to fetch documents: "+err.Error())
	}
}
