// Package routing implements the On-Chain Routing Resolver (C6): direct
// and pivot-routed two-hop aggregation of on-chain entries.
package routing

import (
	"fmt"
	"math/big"
	"time"

	"github.com/pragma-network/pragma-node/internal/apierr"
	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/store"
)

const usd = "USD"

// defaultPivots is the pivot fallback list consulted after USD when a
// direct on-chain pair is missing and routing is requested.
var defaultPivots = []string{usd, "BTC", "ETH", "USDC"}

// OnchainSource is the subset of the store gateway the resolver needs.
type OnchainSource interface {
	AggregateOnchain(pairID string, mode store.AggregationMode, t time.Time, twapInterval time.Duration) (*store.OnchainAggregate, error)
	LastUpdatedTimestamp(pairID string) (time.Time, error)
}

// Result is a resolved on-chain price, the hop set consulted, and the
// reconciled decimals/timestamp.
type Result struct {
	Price            *big.Rat
	Components       []store.OnchainComponent
	PairUsed         []string
	Decimals         int
	LastUpdated      time.Time
}

// Resolver resolves on-chain prices with pivot-asset routing.
type Resolver struct {
	source       OnchainSource
	decimals     *pairid.DecimalTable
	pivots       []string
	twapInterval map[string]time.Duration
}

// New constructs a Resolver with the default pivot list.
func New(source OnchainSource, decimals *pairid.DecimalTable) *Resolver {
	return &Resolver{
		source:   source,
		decimals: decimals,
		pivots:   defaultPivots,
		twapInterval: map[string]time.Duration{
			"1min":  time.Minute,
			"15min": 15 * time.Minute,
			"1h":    time.Hour,
			"2h":    2 * time.Hour,
		},
	}
}

// Resolve implements C6: direct path first, then pivot routing if
// routing is requested and the direct path is empty.
func (r *Resolver) Resolve(pairID string, t time.Time, mode store.AggregationMode, intervalName string, routing bool) (*Result, error) {
	twapInterval := r.twapInterval[intervalName]
	if twapInterval == 0 {
		twapInterval = time.Minute
	}

	if agg, err := r.source.AggregateOnchain(pairID, mode, t, twapInterval); err == nil {
		lastUpdated, err := r.source.LastUpdatedTimestamp(pairID)
		if err != nil {
			return nil, apierr.New(apierr.KindInternalServerError, "OnchainEntry", err.Error())
		}
		return &Result{
			Price:       agg.Price,
			Components:  agg.Components,
			PairUsed:    []string{pairID},
			Decimals:    r.decimals.PairDecimals(pairID),
			LastUpdated: lastUpdated,
		}, nil
	}

	if !routing {
		return nil, apierr.New(apierr.KindUnknownPairID, "OnchainEntry", "unknown pair: "+pairID)
	}

	base, quote, ok := pairid.Split(pairID)
	if !ok {
		return nil, apierr.New(apierr.KindUnknownPairID, "OnchainEntry", "malformed pair id: "+pairID)
	}

	for _, pivot := range r.pivots {
		if pivot == base || pivot == quote {
			continue
		}

		aLeg, aErr := r.resolveLeg(base, pivot, mode, t, twapInterval)
		if aErr != nil {
			continue
		}
		bLeg, bErr := r.resolveLeg(quote, pivot, mode, t, twapInterval)
		if bErr != nil {
			continue
		}

		decA := r.decimals.PairDecimals(aLeg.pairID)
		decB := r.decimals.PairDecimals(bLeg.pairID)
		dec := decA
		if decB < dec {
			dec = decB
		}

		price := new(big.Rat).Quo(aLeg.price, bLeg.price)

		aLast, err := r.source.LastUpdatedTimestamp(aLeg.pairID)
		if err != nil {
			return nil, apierr.New(apierr.KindInternalServerError, "OnchainEntry", err.Error())
		}
		bLast, err := r.source.LastUpdatedTimestamp(bLeg.pairID)
		if err != nil {
			return nil, apierr.New(apierr.KindInternalServerError, "OnchainEntry", err.Error())
		}
		lastUpdated := aLast
		if bLast.After(lastUpdated) {
			lastUpdated = bLast
		}

		components := make([]store.OnchainComponent, 0, len(aLeg.components)+len(bLeg.components))
		components = append(components, aLeg.components...)
		components = append(components, bLeg.components...)

		return &Result{
			Price:       price,
			Components:  components,
			PairUsed:    []string{aLeg.pairID, bLeg.pairID},
			Decimals:    dec,
			LastUpdated: lastUpdated,
		}, nil
	}

	return nil, apierr.New(apierr.KindUnknownPairID, "OnchainEntry", "no route found for: "+pairID)
}

// leg is one resolved hop of a pivot route: the on-chain pair actually
// found, its price already reoriented to asset-per-pivot, and its
// components.
type leg struct {
	pairID     string
	price      *big.Rat
	components []store.OnchainComponent
}

// resolveLeg resolves one hop of a pivot route. It tries the direct
// orientation (asset/pivot) first, then the inversion (pivot/asset) when
// only that is stored on-chain, inverting the price back to
// asset-per-pivot so callers never need to know which orientation was
// found.
func (r *Resolver) resolveLeg(asset, pivot string, mode store.AggregationMode, t time.Time, twapInterval time.Duration) (leg, error) {
	direct := pairid.PairID(asset, pivot)
	if agg, err := r.source.AggregateOnchain(direct, mode, t, twapInterval); err == nil {
		return leg{pairID: direct, price: agg.Price, components: agg.Components}, nil
	}

	inverse := pairid.PairID(pivot, asset)
	if agg, err := r.source.AggregateOnchain(inverse, mode, t, twapInterval); err == nil {
		inverted := new(big.Rat).Inv(agg.Price)
		return leg{pairID: inverse, price: inverted, components: agg.Components}, nil
	}

	return leg{}, fmt.Errorf("no on-chain pair for %s/%s or its inversion", asset, pivot)
}
