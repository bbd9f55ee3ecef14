package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRateToChain(t *testing.T) {
	rate := Rate{Version: "v1", UnitAPerUnitB: 10}

	cases := []struct {
		amount int64
		want   string
	}{
		{0, "0"},
		{10, "1"},
		{100, "10"},
		{5, "0.5"},
		{1, "0.1"},
		{123456789, "12345678.9"},
	}

	for _, tc := range cases {
		got := rate.ToChain(tc.amount)
		require.True(t, got.Equal(decimal.RequireFromString(tc.want)),
			"ToChain(%d) = %s, want %s", tc.amount, got, tc.want)
	}
}

func TestRateToChainNonDecadicUnit(t *testing.T) {
	rate := Rate{Version: "v2", UnitAPerUnitB: 3}

	got := rate.ToChain(1)
	require.Equal(t, "0.333333333333333333", got.String())
}
