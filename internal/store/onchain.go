package store

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"
)

// AggregationMode is a closed enum: median, mean, or twap.
type AggregationMode string

const (
	AggregationMedian AggregationMode = "median"
	AggregationMean   AggregationMode = "mean"
	AggregationTWAP   AggregationMode = "twap"
)

// OnchainAggregate is the result of aggregating on-chain entries for a
// pair under a given mode, at or before a given time.
type OnchainAggregate struct {
	Price      *big.Rat
	Components []OnchainComponent
}

// AggregateOnchain aggregates on-chain entries for a pair at time t under
// the given mode. twapInterval is only consulted when mode is TWAP.
func (db *DB) AggregateOnchain(pairID string, mode AggregationMode, t time.Time, twapInterval time.Duration) (*OnchainAggregate, error) {
	var from time.Time
	if mode == AggregationTWAP {
		from = AlignToInterval(t, twapInterval)
	} else {
		from = time.Time{}
	}

	rows, err := db.Query(`
		SELECT publisher, source, price, timestamp, tx_hash
		FROM onchain_entries
		WHERE pair_id = $1 AND timestamp <= $2 AND timestamp >= $3
		ORDER BY timestamp DESC
	`, pairID, t, from)
	if err != nil {
		return nil, fmt.Errorf("query onchain entries for %s: %w", pairID, err)
	}
	defer rows.Close()

	var components []OnchainComponent
	for rows.Next() {
		var c OnchainComponent
		var priceStr string
		if err := rows.Scan(&c.Publisher, &c.Source, &priceStr, &c.Timestamp, &c.TxHash); err != nil {
			return nil, err
		}
		price, ok := new(big.Rat).SetString(priceStr)
		if !ok {
			return nil, fmt.Errorf("malformed price %q", priceStr)
		}
		c.Price = price
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, sql.ErrNoRows
	}

	prices := make([]*big.Rat, len(components))
	for i, c := range components {
		prices[i] = c.Price
	}

	var price *big.Rat
	switch mode {
	case AggregationMean:
		price = mean(prices)
	default: // median and twap both reduce to a median of the windowed set
		price = Median(prices)
	}

	return &OnchainAggregate{Price: price, Components: components}, nil
}

// LastUpdatedTimestamp returns the most recent on-chain observation time
// for a pair, used by the routing resolver to reconcile hop freshness.
func (db *DB) LastUpdatedTimestamp(pairID string) (time.Time, error) {
	var ts time.Time
	err := db.QueryRow(`
		SELECT MAX(timestamp) FROM onchain_entries WHERE pair_id = $1
	`, pairID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last updated timestamp for %s: %w", pairID, err)
	}
	return ts, nil
}

func mean(prices []*big.Rat) *big.Rat {
	sum := new(big.Rat)
	for _, p := range prices {
		sum.Add(sum, p)
	}
	return sum.Quo(sum, big.NewRat(int64(len(prices)), 1))
}

// AlignToInterval floors t down to the nearest interval boundary using
// minutes-of-day floor-division arithmetic: aligned_minutes = (h*60+m) //
// N * N, with seconds zeroed. N is the interval expressed in minutes.
// This deliberately avoids any library-specific date-bucketing helper.
func AlignToInterval(t time.Time, interval time.Duration) time.Time {
	n := int(interval.Minutes())
	if n <= 0 {
		n = 1
	}
	h, m, _ := t.Clock()
	minutesOfDay := h*60 + m
	aligned := (minutesOfDay / n) * n
	alignedH := aligned / 60
	alignedM := aligned % 60
	y, mo, d := t.Date()
	return time.Date(y, mo, d, alignedH, alignedM, 0, 0, t.Location())
}
