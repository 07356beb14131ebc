package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsistencyChecker_Consistent(t *testing.T) {
	a := line(1, "001", "P1", "1", "60")
	a.IPI = d("6")
	b := line(2, "002", "P2", "1", "40.005")
	inv := invoice("A", "1", "X", a, b)
	inv.Header.TotalProducts = d("100")
	inv.Header.TotalIPI = d("6")

	result := NewConsistencyChecker().Check(inv)

	assert.True(t, result.Consistent)
	assert.Empty(t, result.Warnings)
}

func TestConsistencyChecker_Mismatches(t *testing.T) {
	a := line(1, "001", "P1", "1", "60")
	a.ICMSST = d("5")
	inv := invoice("A", "1", "X", a)
	inv.Header.TotalProducts = d("70")
	inv.Header.TotalICMSST = d("4")

	result := NewConsistencyChecker().Check(inv)

	require.False(t, result.Consistent)
	codes := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.ElementsMatch(t, []string{"products_mismatch", "icms_st_mismatch"}, codes)
	assertDecimal(t, "70", result.Warnings[0].Expected)
	assertDecimal(t, "60", result.Warnings[0].Actual)
}

func TestConsistencyChecker_StatedFreight(t *testing.T) {
	a := line(1, "001", "P1", "1", "50")
	a.StatedFreight = dp("10")
	b := line(2, "002", "P2", "1", "50")
	inv := invoice("A", "1", "X", a, b)
	inv.Header.TotalFreight = d("30")

	// so um item informa frete: nada a comparar
	assert.True(t, NewConsistencyChecker().Check(inv).Consistent)

	inv.Items[1].StatedFreight = dp("15")
	result := NewConsistencyChecker().Check(inv)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "freight_mismatch", result.Warnings[0].Code)
	assertDecimal(t, "25", result.Warnings[0].Actual)
}

func TestConsistencyChecker_NoAllocationBase(t *testing.T) {
	inv := invoice("A", "1", "X", line(1, "001", "P1", "1", "0"))
	inv.Header.TotalFreight = d("12")

	result := NewConsistencyChecker().Check(inv)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "no_allocation_base", result.Warnings[0].Code)
}
