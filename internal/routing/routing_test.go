package routing

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/store"
)

type fakeOnchain struct {
	aggregates  map[string]*store.OnchainAggregate
	lastUpdated map[string]time.Time
}

func (f *fakeOnchain) AggregateOnchain(pairID string, mode store.AggregationMode, t time.Time, twapInterval time.Duration) (*store.OnchainAggregate, error) {
	agg, ok := f.aggregates[pairID]
	if !ok {
		return nil, assertNotFound
	}
	return agg, nil
}

func (f *fakeOnchain) LastUpdatedTimestamp(pairID string) (time.Time, error) {
	return f.lastUpdated[pairID], nil
}

var assertNotFound = &notFoundErr{}

type notFoundErr struct{}

func (e *notFoundErr) Error() string { return "not found" }

func TestResolveDirectPath(t *testing.T) {
	src := &fakeOnchain{
		aggregates: map[string]*store.OnchainAggregate{
			"BTC/USD": {Price: big.NewRat(65000, 1), Components: []store.OnchainComponent{{Publisher: "p1"}}},
		},
		lastUpdated: map[string]time.Time{"BTC/USD": time.Unix(500, 0)},
	}
	r := New(src, pairid.NewDecimalTable(map[string]int{"BTC": 8, "USD": 8}))

	res, err := r.Resolve("BTC/USD", time.Unix(1000, 0), store.AggregationMedian, "1min", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD"}, res.PairUsed)
	assert.Equal(t, 0, res.Price.Cmp(big.NewRat(65000, 1)))
}

func TestResolveRoutesThroughPivotWhenDirectMissing(t *testing.T) {
	src := &fakeOnchain{
		aggregates: map[string]*store.OnchainAggregate{
			"BTC/USD": {Price: big.NewRat(65000, 1), Components: []store.OnchainComponent{{Publisher: "p1"}}},
			"ETH/USD": {Price: big.NewRat(3250, 1), Components: []store.OnchainComponent{{Publisher: "p2"}}},
		},
		lastUpdated: map[string]time.Time{
			"BTC/USD": time.Unix(500, 0),
			"ETH/USD": time.Unix(300, 0),
		},
	}
	r := New(src, pairid.NewDecimalTable(map[string]int{"BTC": 8, "ETH": 8, "USD": 8}))

	res, err := r.Resolve("BTC/ETH", time.Unix(1000, 0), store.AggregationMedian, "1min", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, res.PairUsed)
	assert.Len(t, res.Components, 2)
	assert.True(t, res.LastUpdated.Equal(time.Unix(500, 0))) // max over hops: the more recently updated leg

	want := new(big.Rat).Quo(big.NewRat(65000, 1), big.NewRat(3250, 1))
	assert.Equal(t, 0, res.Price.Cmp(want))
}

func TestResolveRoutesThroughInvertedPivotLeg(t *testing.T) {
	// USD/ETH is on-chain (not ETH/USD): the quote leg should fall back
	// to the inverted orientation and invert the price back.
	src := &fakeOnchain{
		aggregates: map[string]*store.OnchainAggregate{
			"BTC/USD": {Price: big.NewRat(65000, 1), Components: []store.OnchainComponent{{Publisher: "p1"}}},
			"USD/ETH": {Price: big.NewRat(1, 3250), Components: []store.OnchainComponent{{Publisher: "p2"}}},
		},
		lastUpdated: map[string]time.Time{
			"BTC/USD": time.Unix(500, 0),
			"USD/ETH": time.Unix(300, 0),
		},
	}
	r := New(src, pairid.NewDecimalTable(map[string]int{"BTC": 8, "ETH": 8, "USD": 8}))

	res, err := r.Resolve("BTC/ETH", time.Unix(1000, 0), store.AggregationMedian, "1min", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD", "USD/ETH"}, res.PairUsed)

	want := new(big.Rat).Quo(big.NewRat(65000, 1), big.NewRat(3250, 1))
	assert.Equal(t, 0, res.Price.Cmp(want))
}

func TestResolveUnknownPairWithoutRouting(t *testing.T) {
	src := &fakeOnchain{aggregates: map[string]*store.OnchainAggregate{}}
	r := New(src, pairid.NewDecimalTable(nil))

	_, err := r.Resolve("BTC/ETH", time.Unix(1000, 0), store.AggregationMedian, "1min", false)
	require.Error(t, err)
}
