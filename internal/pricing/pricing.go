// Package pricing implements the Index Pricer (C4) and Mark Pricer (C5):
// turning raw per-publisher observations into a single median price per
// pair, with a two-level composition for non-USD perps.
package pricing

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/pragma-network/pragma-node/internal/pairid"
	"github.com/pragma-network/pragma-node/internal/store"
)

const usd = "USD"

// EntrySource is the subset of the store gateway the pricer needs.
type EntrySource interface {
	CurrentMedianWithComponents(pairIDs []string, kind store.EntryKind, staleness time.Duration) ([]store.MedianEntryWithComponents, error)
}

// Pricer computes index and mark prices.
type Pricer struct {
	source    EntrySource
	decimals  *pairid.DecimalTable
	staleness time.Duration
}

// New constructs a Pricer against an entry source and decimal table.
func New(source EntrySource, decimals *pairid.DecimalTable, staleness time.Duration) *Pricer {
	return &Pricer{source: source, decimals: decimals, staleness: staleness}
}

// Index computes C4: for each pair with at least one fresh observation,
// the median price and its components, sorted by publisher then source.
// Pairs with zero fresh observations are silently omitted.
func (p *Pricer) Index(ctx context.Context, pairIDs []string, kind store.EntryKind) ([]store.MedianEntryWithComponents, error) {
	entries, err := p.source.CurrentMedianWithComponents(pairIDs, kind, p.staleness)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PairID < entries[j].PairID })
	return entries, nil
}

// Mark computes C5: for each non-USD perp pair X/Y, composes X/USD and
// Y/USD medians into a synthetic mark. A pair is omitted if either leg is
// missing.
func (p *Pricer) Mark(ctx context.Context, pairIDs []string) ([]store.MedianEntryWithComponents, error) {
	legPairs := make(map[string]bool)
	wants := make([]wantedMark, 0, len(pairIDs))
	for _, id := range pairIDs {
		base, quote, ok := pairid.Split(id)
		if !ok || quote == usd {
			continue
		}
		xUSD := pairid.PairID(base, usd)
		yUSD := pairid.PairID(quote, usd)
		legPairs[xUSD] = true
		legPairs[yUSD] = true
		wants = append(wants, wantedMark{pairID: id, xUSD: xUSD, yUSD: yUSD})
	}
	if len(wants) == 0 {
		return nil, nil
	}

	legIDs := make([]string, 0, len(legPairs))
	for id := range legPairs {
		legIDs = append(legIDs, id)
	}
	legs, err := p.source.CurrentMedianWithComponents(legIDs, store.KindPerp, p.staleness)
	if err != nil {
		return nil, err
	}
	byPair := make(map[string]store.MedianEntryWithComponents, len(legs))
	for _, l := range legs {
		byPair[l.PairID] = l
	}

	results := make([]store.MedianEntryWithComponents, 0, len(wants))
	for _, w := range wants {
		xLeg, okX := byPair[w.xUSD]
		yLeg, okY := byPair[w.yUSD]
		if !okX || !okY {
			continue
		}

		decX := p.decimals.PairDecimals(w.xUSD)
		decY := p.decimals.PairDecimals(w.yUSD)
		targetDec := decX
		if decY < targetDec {
			targetDec = decY
		}

		mark := new(big.Rat).Quo(xLeg.MedianPrice, yLeg.MedianPrice)
		mark = roundToDecimals(mark, targetDec)

		ts := xLeg.MedianTimestamp
		if yLeg.MedianTimestamp.Before(ts) {
			ts = yLeg.MedianTimestamp
		}

		components := make([]store.OnchainComponent, 0, len(xLeg.Components)+len(yLeg.Components))
		components = append(components, xLeg.Components...)
		components = append(components, yLeg.Components...)

		results = append(results, store.MedianEntryWithComponents{
			PairID:          w.pairID,
			MedianPrice:     mark,
			MedianTimestamp: ts,
			Components:      components,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].PairID < results[j].PairID })
	return results, nil
}

type wantedMark struct {
	pairID string
	xUSD   string
	yUSD   string
}

func roundToDecimals(r *big.Rat, decimals int) *big.Rat {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaleRat := new(big.Rat).SetInt(scale)
	scaled := new(big.Rat).Mul(r, scaleRat)
	rounded := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	out := new(big.Rat).SetInt(rounded)
	return out.Quo(out, scaleRat)
}
