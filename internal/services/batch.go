package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/nfe"
)

// RawDocument is one document as read from a file, an upload, an object
// store or the database. Err records a load failure; the document then
// settles as failed without being decoded.
type RawDocument struct {
	Source string
	Data   []byte
	Err    error
}

// DocumentOutcome is the settled result of one document. Exactly one of
// Invoice and Err is set.
type DocumentOutcome struct {
	Source      string             `json:"source"`
	Invoice     *models.Invoice    `json:"invoice,omitempty"`
	Consistency *ConsistencyResult `json:"consistency,omitempty"`
	Err         error              `json:"-"`
}

// Error returns the failure message, empty on success
func (o DocumentOutcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// BatchResult holds one outcome per input document, in input order
type BatchResult struct {
	Outcomes []DocumentOutcome
}

// Invoices returns the successfully allocated invoices in input order
func (r BatchResult) Invoices() []*models.Invoice {
	invoices := make([]*models.Invoice, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil && o.Invoice != nil {
			invoices = append(invoices, o.Invoice)
		}
	}
	return invoices
}

// Failed returns the outcomes that did not produce an invoice, excluding
// documents that were never started because the context ended
func (r BatchResult) Failed() []DocumentOutcome {
	var failed []DocumentOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil && !isContextErr(o.Err) {
			failed = append(failed, o)
		}
	}
	return failed
}

// BatchProcessor decodes, normalizes and allocates documents in parallel
type BatchProcessor struct {
	engine      *AllocationEngine
	checker     *ConsistencyChecker
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a processor running at most concurrency
// documents at a time
func NewBatchProcessor(engine *AllocationEngine, concurrency int, logger *zap.Logger) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		engine:      engine,
		checker:     NewConsistencyChecker(),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Process runs every document to completion. A failing document never stops
// the others. Documents not started before ctx ends carry ctx.Err(). A source
// seen earlier in the same batch is skipped with models.ErrDuplicateDocument.
func (p *BatchProcessor) Process(ctx context.Context, docs []RawDocument) BatchResult {
	outcomes := make([]DocumentOutcome, len(docs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		outcomes[i].Source = doc.Source

		if _, dup := seen[doc.Source]; dup && doc.Source != "" {
			outcomes[i].Err = fmt.Errorf("%w: %s", models.ErrDuplicateDocument, doc.Source)
			p.logger.Warn("Duplicate document skipped", zap.String("source", doc.Source))
			continue
		}
		seen[doc.Source] = struct{}{}

		if doc.Err != nil {
			outcomes[i].Err = doc.Err
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}

			inv, err := p.processOne(doc)
			if err != nil {
				p.logger.Warn("Document failed",
					zap.String("source", doc.Source),
					zap.Error(err),
				)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Invoice = inv
			outcomes[i].Consistency = p.checker.Check(inv)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("Batch processed",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", p.concurrency),
	)
	return BatchResult{Outcomes: outcomes}
}

func (p *BatchProcessor) processOne(doc RawDocument) (*models.Invoice, error) {
	parsed, err := nfe.Decode(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", doc.Source, err)
	}
	inv, err := nfe.Normalize(parsed, doc.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", doc.Source, err)
	}
	return p.engine.Allocate(inv), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
