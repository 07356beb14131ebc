package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/ai"
	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/services"
)

// DocumentResult is one analyzed document in an API response
type DocumentResult struct {
	Source      string                      `json:"source"`
	Success     bool                        `json:"success"`
	Invoice     *models.Invoice             `json:"invoice,omitempty"`
	GrossValue  *decimal.Decimal            `json:"grossValue,omitempty"`
	Consistency *services.ConsistencyResult `json:"consistency,omitempty"`
	Error       string                      `json:"error,omitempty"`
	Duplicate   bool                        `json:"duplicate,omitempty"`
}

// BatchSummary counts the settled documents of a request
type BatchSummary struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// AnalyzeResponse is returned by the analyze endpoints
type AnalyzeResponse struct {
	Success        bool             `json:"success"`
	Policy         string           `json:"policy"`
	Documents      []DocumentResult `json:"documents"`
	Summary        BatchSummary     `json:"summary"`
	ProcessingTime string           `json:"processingTime"`
}

// CompareResponse is returned by the compare endpoints
type CompareResponse struct {
	Success        bool                     `json:"success"`
	Policy         string                   `json:"policy"`
	Grouping       string                   `json:"grouping"` // "code" or "ai"
	GroupingError  string                   `json:"groupingError,omitempty"`
	Documents      []DocumentResult         `json:"documents"`
	Summary        BatchSummary             `json:"summary"`
	Groups         []models.ComparisonGroup `json:"groups"`
	ProcessingTime string                   `json:"processingTime"`
}

// ConvertRequest applies a conversion factor to one allocated line
type ConvertRequest struct {
	Item   models.AllocatedLineItem `json:"item"`
	Factor interface{}              `json:"factor"`
}

// Analyze allocates every uploaded NF-e
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	docs, status, err := h.readUploads(w, r)
	if err != nil {
		h.sendError(w, status, err.Error())
		return
	}
	h.analyze(w, r, docs)
}

// Compare allocates every uploaded NF-e and matches products across them.
// Form field grouping=ai asks the configured AI provider to group similar
// descriptions; aiProvider and aiModel override the configured provider.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	docs, status, err := h.readUploads(w, r)
	if err != nil {
		h.sendError(w, status, err.Error())
		return
	}
	h.compare(w, r, docs, compareOptions{
		grouping: r.FormValue("grouping"),
		provider: r.FormValue("aiProvider"),
		model:    r.FormValue("aiModel"),
	})
}

// Convert recomputes the converted unit cost of one line
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ConvertRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item := services.ApplyConversion(req.Item, req.Factor)
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"item":    item,
	})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request, docs []services.RawDocument) {
	start := time.Now()
	result := h.processor.Process(r.Context(), docs)

	documents, summary := buildDocumentResults(result, true)
	h.requestLogger(r).Info("Documents analyzed",
		zap.Int("total", summary.Total),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)

	h.sendJSON(w, http.StatusOK, AnalyzeResponse{
		Success:        summary.Succeeded > 0,
		Policy:         h.engine.Policy(),
		Documents:      documents,
		Summary:        summary,
		ProcessingTime: time.Since(start).String(),
	})
}

type compareOptions struct {
	grouping string
	provider string
	model    string
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request, docs []services.RawDocument, opts compareOptions) {
	start := time.Now()
	log := h.requestLogger(r)

	result := h.processor.Process(r.Context(), docs)
	invoices := result.Invoices()
	documents, summary := buildDocumentResults(result, false)

	response := CompareResponse{
		Success:   true,
		Policy:    h.engine.Policy(),
		Grouping:  "code",
		Documents: documents,
		Summary:   summary,
	}

	if opts.grouping == "ai" {
		groups, err := h.groupWithAI(r.Context(), invoices, opts, log)
		response.Groups = groups
		if err != nil {
			response.GroupingError = err.Error()
		} else {
			response.Grouping = "ai"
		}
	} else {
		response.Groups = h.matcher.Match(invoices)
	}

	response.ProcessingTime = time.Since(start).String()
	log.Info("Documents compared",
		zap.Int("invoices", len(invoices)),
		zap.Int("groups", len(response.Groups)),
		zap.String("grouping", response.Grouping),
	)
	h.sendJSON(w, http.StatusOK, response)
}

// groupWithAI never fails the request: when the provider is missing or the
// call fails, exact-code groups come back with the error
func (h *Handler) groupWithAI(ctx context.Context, invoices []*models.Invoice, opts compareOptions, log *zap.Logger) ([]models.ComparisonGroup, error) {
	provider, err := h.newProvider(h.config.AI, opts.provider, opts.model)
	if err != nil {
		log.Warn("AI grouping unavailable", zap.Error(err))
		return h.matcher.Match(invoices), err
	}

	grouper := ai.NewGrouper(provider, log)
	groups, err := h.matcher.MatchWithGrouping(ctx, invoices, grouper)
	if err != nil {
		log.Warn("AI grouping failed, using exact codes",
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
	}
	return groups, err
}

func buildDocumentResults(result services.BatchResult, withInvoices bool) ([]DocumentResult, BatchSummary) {
	documents := make([]DocumentResult, 0, len(result.Outcomes))
	summary := BatchSummary{Total: len(result.Outcomes)}

	for _, o := range result.Outcomes {
		doc := DocumentResult{Source: o.Source}
		switch {
		case o.Err != nil:
			doc.Error = o.Error()
			if errors.Is(o.Err, models.ErrDuplicateDocument) {
				doc.Duplicate = true
				summary.Duplicates++
			} else {
				summary.Failed++
			}
		default:
			doc.Success = true
			summary.Succeeded++
			gross := o.Invoice.Header.GrossValue()
			doc.GrossValue = &gross
			doc.Consistency = o.Consistency
			if withInvoices {
				doc.Invoice = o.Invoice
			}
		}
		documents = append(documents, doc)
	}
	return documents, summary
}
