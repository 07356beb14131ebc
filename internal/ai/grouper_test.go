package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

type fakeProvider struct {
	response string
	err      error
	prompt   string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

var sampleInputs = []models.ProductInput{
	{Code: "001", Description: "PARAFUSO SEXT. 1/4", Quantity: 10, UnitCost: 5, NfeID: "A", NfeNumber: "1", EmitterName: "Fornecedor A"},
	{Code: "77", Description: "PARAF SEXTAVADO 1/4", Quantity: 5, UnitCost: 6, NfeID: "B", NfeNumber: "2", EmitterName: "Fornecedor B"},
	{Code: "002", Description: "PNEU ARO 15", Quantity: 1, UnitCost: 300, NfeID: "A", NfeNumber: "1", EmitterName: "Fornecedor A"},
}

func TestGroupSimilarProducts(t *testing.T) {
	provider := &fakeProvider{response: "```json\n" + `{"groups": [
		{"canonicalDescription": "Parafuso Sextavado 1/4", "items": [
			{"code": "001", "description": "PARAFUSO SEXT. 1/4", "quantity": 10, "unitCost": 5, "nfeId": "A", "nfeNumber": "1", "emitterName": "Fornecedor A"},
			{"code": "77", "description": "PARAF SEXTAVADO 1/4", "quantity": "5", "unitCost": "6,00", "nfeId": "B", "nfeNumber": 2, "emitterName": "Fornecedor B"}
		]}
	]}` + "\n```"}

	groups, err := NewGrouper(provider, nil).GroupSimilarProducts(context.Background(), sampleInputs)
	require.NoError(t, err)

	assert.Contains(t, provider.prompt, `"nfeId":"A"`)
	require.Len(t, groups, 2)

	assert.Equal(t, "Parafuso Sextavado 1/4", groups[0].CanonicalDescription)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, 6.0, groups[0].Items[1].UnitCost)
	assert.Equal(t, "2", groups[0].Items[1].NfeNumber)

	// o pneu foi omitido pela IA e volta sozinho
	assert.Equal(t, "PNEU ARO 15", groups[1].CanonicalDescription)
	assert.Equal(t, sampleInputs[2], groups[1].Items[0])
}

func TestGroupSimilarProducts_BareArrayAndInventedItems(t *testing.T) {
	provider := &fakeProvider{response: `[
		{"canonicalDescription": "Pneu Aro 15", "items": [
			{"code": "002", "description": "PNEU ARO 15", "quantity": 1, "unitCost": 300, "nfeId": "A", "nfeNumber": "1"},
			{"code": "999", "description": "INVENTADO", "quantity": 1, "unitCost": 1, "nfeId": "Z", "nfeNumber": "9"}
		]}
	]`}

	groups, err := NewGrouper(provider, nil).GroupSimilarProducts(context.Background(), sampleInputs)
	require.NoError(t, err)

	require.Len(t, groups, 3)
	assert.Len(t, groups[0].Items, 1)
	for _, g := range groups {
		for _, item := range g.Items {
			assert.NotEqual(t, "999", item.Code)
		}
	}
}

func TestGroupSimilarProducts_Errors(t *testing.T) {
	_, err := NewGrouper(&fakeProvider{err: errors.New("timeout")}, nil).
		GroupSimilarProducts(context.Background(), sampleInputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	_, err = NewGrouper(&fakeProvider{response: "desculpe, nao consigo"}, nil).
		GroupSimilarProducts(context.Background(), sampleInputs)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse"))
}

func TestGroupSimilarProducts_Empty(t *testing.T) {
	provider := &fakeProvider{}

	groups, err := NewGrouper(provider, nil).GroupSimilarProducts(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Empty(t, provider.prompt)
}

func TestNewProvider(t *testing.T) {
	cfg := models.DefaultConfig().AI

	_, err := NewProvider(cfg, "openai", "")
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewProvider(cfg, "gemini", "")
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewProvider(cfg, "watson", "")
	assert.Error(t, err)

	p, err := NewProvider(cfg, "ollama", "mistral")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	cfg.OpenAI.APIKey = "sk-test"
	p, err = NewProvider(cfg, "", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{float64(2.5), "2.5"},
		{"3,50", "3.5"},
		{"1234.5", "1234.5"},
		{"abc", "0"},
		{nil, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDecimal(tt.in).String())
	}
}
