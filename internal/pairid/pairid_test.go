package pairid

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairIDCanonicalization(t *testing.T) {
	assert.Equal(t, "BTC/USD", PairID("btc", "usd"))
	assert.Equal(t, "BTC/USD", PairID("BTC", "USD"))
}

func TestSplitRoundTrip(t *testing.T) {
	base, quote, ok := Split("ETH/USD")
	require.True(t, ok)
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USD", quote)

	_, _, ok = Split("malformed")
	assert.False(t, ok)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("BTC", "USD"))
	assert.False(t, Valid("", "USD"))
	assert.False(t, Valid("BTC", "BTC"))
	assert.False(t, Valid("btc", "usd"))
	assert.False(t, Valid("BTC-X", "USD"))
}

func TestDecimalTableDefaults(t *testing.T) {
	table := NewDecimalTable(map[string]int{"BTC": 8, "USD": 6})
	assert.Equal(t, 6, table.PairDecimals("BTC/USD"))
	assert.Equal(t, defaultDecimals, table.CurrencyDecimals("UNKNOWN"))
	assert.Equal(t, defaultDecimals, table.PairDecimals("UNKNOWN/ALSO"))
}

func TestFormatHexScalesByDecimals(t *testing.T) {
	price := big.NewRat(123456, 100) // 1234.56
	hex := FormatHex(price, 2)
	assert.Equal(t, "0x1e240", hex) // 123456 in hex
}

func TestFormatDecimalString(t *testing.T) {
	price := big.NewRat(123456, 100) // 1234.56
	assert.Equal(t, "1234.5600", FormatDecimalString(price, 4))
	assert.Equal(t, "1234.56", FormatDecimalString(price, 2))
}
