package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

const systemPrompt = "Voce e um especialista em catalogacao de produtos de varejo e atacado. Responda somente com JSON valido."

// Grouper asks a language model which NF-e items are the same product
type Grouper struct {
	provider Provider
	logger   *zap.Logger
}

// NewGrouper creates a new grouper
func NewGrouper(provider Provider, logger *zap.Logger) *Grouper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{
		provider: provider,
		logger:   logger.Named("ai.grouper"),
	}
}

// GroupSimilarProducts returns the items grouped under canonical
// descriptions. Items the model leaves out come back as single-item groups.
func (g *Grouper) GroupSimilarProducts(ctx context.Context, items []models.ProductInput) ([]models.ProductGroup, error) {
	if len(items) == 0 {
		return []models.ProductGroup{}, nil
	}

	startTime := time.Now()

	prompt, err := buildGroupingPrompt(items)
	if err != nil {
		return nil, err
	}

	response, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("AI grouping failed: %w", err)
	}

	g.logger.Debug("Grouping response received",
		zap.String("provider", g.provider.Name()),
		zap.Int("items", len(items)),
		zap.Int("response_length", len(response)),
		zap.Duration("duration", time.Since(startTime)),
	)

	groups, err := parseGroupingResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return completeGroups(groups, items), nil
}

func buildGroupingPrompt(items []models.ProductInput) (string, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode products: %w", err)
	}

	return fmt.Sprintf(`Analise a lista de produtos abaixo, extraida de varias Notas Fiscais eletronicas (NF-e), e agrupe os itens que sao o mesmo produto.

Itens com descricoes muito parecidas sao o mesmo produto mesmo quando o codigo (cProd) ou pequenos detalhes do nome (xProd) mudam.

## REGRAS
1. Crie um grupo para cada produto identificado.
2. Defina "canonicalDescription": a descricao mais clara e padronizada para o grupo. Ex: "PARAFUSO SEXT. 1/4" e "PARAF SEXTAVADO 1/4" viram "Parafuso Sextavado 1/4".
3. "items" deve conter os objetos de produto originais, sem alterar nenhum campo.
4. Produto sem equivalente em outra nota fica em um grupo so dele.
5. NAO agrupe itens realmente diferentes (ex: "Pneu Aro 15" e "Pneu Aro 16").

Devolva SOMENTE JSON valido (sem markdown, sem comentarios) no formato:
{"groups": [{"canonicalDescription": "...", "items": [ ...produtos originais... ]}]}

Lista de produtos:
%s`, payload), nil
}

type rawProduct struct {
	Code        string      `json:"code"`
	Description string      `json:"description"`
	Quantity    interface{} `json:"quantity"`
	UnitCost    interface{} `json:"unitCost"`
	NfeID       interface{} `json:"nfeId"`
	NfeNumber   interface{} `json:"nfeNumber"`
	EmitterName string      `json:"emitterName"`
}

type rawGroup struct {
	CanonicalDescription string       `json:"canonicalDescription"`
	Items                []rawProduct `json:"items"`
}

// parseGroupingResponse accepts {"groups": [...]} or a bare array, with or
// without a markdown code fence around it
func parseGroupingResponse(response string) ([]models.ProductGroup, error) {
	cleaned := strings.TrimSpace(response)
	backticks := string([]byte{96, 96, 96})
	cleaned = strings.ReplaceAll(cleaned, backticks+"json", "")
	cleaned = strings.ReplaceAll(cleaned, backticks, "")
	cleaned = strings.TrimSpace(cleaned)

	var raw []rawGroup
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	} else {
		var wrapped struct {
			Groups []rawGroup `json:"groups"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
		raw = wrapped.Groups
	}

	groups := make([]models.ProductGroup, 0, len(raw))
	for _, rg := range raw {
		group := models.ProductGroup{
			CanonicalDescription: strings.TrimSpace(rg.CanonicalDescription),
			Items:                make([]models.ProductInput, 0, len(rg.Items)),
		}
		for _, item := range rg.Items {
			group.Items = append(group.Items, models.ProductInput{
				Code:        item.Code,
				Description: item.Description,
				Quantity:    parseDecimal(item.Quantity).InexactFloat64(),
				UnitCost:    parseDecimal(item.UnitCost).InexactFloat64(),
				NfeID:       parseString(item.NfeID),
				NfeNumber:   parseString(item.NfeNumber),
				EmitterName: item.EmitterName,
			})
		}
		if len(group.Items) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

type productKey struct {
	nfeID       string
	code        string
	description string
}

// completeGroups drops items the model invented and adds the ones it left out
func completeGroups(groups []models.ProductGroup, inputs []models.ProductInput) []models.ProductGroup {
	remaining := make(map[productKey]int, len(inputs))
	for _, in := range inputs {
		remaining[productKey{in.NfeID, in.Code, in.Description}]++
	}

	out := make([]models.ProductGroup, 0, len(groups))
	for _, group := range groups {
		kept := group.Items[:0]
		for _, item := range group.Items {
			key := productKey{item.NfeID, item.Code, item.Description}
			if remaining[key] == 0 {
				continue
			}
			remaining[key]--
			kept = append(kept, item)
		}
		if len(kept) > 0 {
			group.Items = kept
			out = append(out, group)
		}
	}

	for _, in := range inputs {
		key := productKey{in.NfeID, in.Code, in.Description}
		if remaining[key] == 0 {
			continue
		}
		remaining[key]--
		out = append(out, models.ProductGroup{
			CanonicalDescription: in.Description,
			Items:                []models.ProductInput{in},
		})
	}
	return out
}

// parseDecimal handles flexible number parsing from interface{}
// Supports: numbers, strings, strings with decimal comma (e.g., "3,50")
func parseDecimal(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		s := strings.TrimSpace(val)
		if strings.Contains(s, ",") && !strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", ".")
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func parseString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	default:
		return fmt.Sprint(val)
	}
}
