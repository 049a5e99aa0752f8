package pricing

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/store"
)

type fakeSource struct {
	byPair map[string]store.MedianEntryWithComponents
}

func (f *fakeSource) CurrentMedianWithComponents(pairIDs []string, kind store.EntryKind, staleness time.Duration) ([]store.MedianEntryWithComponents, error) {
	var out []store.MedianEntryWithComponents
	for _, id := range pairIDs {
		if e, ok := f.byPair[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestIndexOmitsPairsWithNoObservations(t *testing.T) {
	src := &fakeSource{byPair: map[string]store.MedianEntryWithComponents{
		"BTC/USD": {PairID: "BTC/USD", MedianPrice: big.NewRat(65000, 1), MedianTimestamp: time.Unix(100, 0)},
	}}
	p := New(src, pairid.NewDecimalTable(nil), time.Minute)

	results, err := p.Index(context.Background(), []string{"BTC/USD", "ETH/USD"}, store.KindSpot)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "BTC/USD", results[0].PairID)
}

func TestMarkComposesTwoUSDLegsAndTakesStalerTimestamp(t *testing.T) {
	src := &fakeSource{byPair: map[string]store.MedianEntryWithComponents{
		"BTC/USD": {PairID: "BTC/USD", MedianPrice: big.NewRat(65000, 1), MedianTimestamp: time.Unix(200, 0),
			Components: []store.OnchainComponent{{Publisher: "p1"}}},
		"ETH/USD": {PairID: "ETH/USD", MedianPrice: big.NewRat(3250, 1), MedianTimestamp: time.Unix(100, 0),
			Components: []store.OnchainComponent{{Publisher: "p2"}}},
	}}
	p := New(src, pairid.NewDecimalTable(map[string]int{"BTC": 8, "ETH": 8, "USD": 8}), time.Minute)

	results, err := p.Mark(context.Background(), []string{"BTC/ETH"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "BTC/ETH", got.PairID)
	assert.True(t, got.MedianTimestamp.Equal(time.Unix(100, 0)))
	assert.Len(t, got.Components, 2)

	want := new(big.Rat).Quo(big.NewRat(65000, 1), big.NewRat(3250, 1))
	assert.Equal(t, 0, got.MedianPrice.Cmp(want))
}

func TestMarkOmitsPairWhenLegMissing(t *testing.T) {
	src := &fakeSource{byPair: map[string]store.MedianEntryWithComponents{
		"BTC/USD": {PairID: "BTC/USD", MedianPrice: big.NewRat(65000, 1), MedianTimestamp: time.Unix(200, 0)},
	}}
	p := New(src, pairid.NewDecimalTable(nil), time.Minute)

	results, err := p.Mark(context.Background(), []string{"BTC/ETH"})
	require.NoError(t, err)
	assert.Empty(t, results)
}
