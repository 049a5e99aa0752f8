package store

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/lib/pq"
)

// EntryKind selects which table a batch is inserted into / queried from.
type EntryKind int

const (
	KindSpot EntryKind = iota
	KindFuture
	KindPerp
)

func (k EntryKind) tableName() string {
	switch k {
	case KindFuture:
		return "future_entries"
	case KindPerp:
		return "perp_entries"
	default:
		return "entries"
	}
}

// NewEntry is an entry pending insertion.
type NewEntry struct {
	PairID              string
	Publisher           string
	Source              string
	Timestamp           time.Time
	ExpirationTimestamp *time.Time // nil or epoch-zero => perpetual
	Price               *big.Rat
	PublisherSignature  string
}

// IsPerpetual reports whether this entry belongs in the perp table: its
// expiration is absent or epoch-zero.
func (e NewEntry) IsPerpetual() bool {
	if e.ExpirationTimestamp == nil {
		return true
	}
	return e.ExpirationTimestamp.Unix() == 0
}

// InsertSpot idempotently inserts spot entries, returning only the rows
// that were actually inserted (conflicting rows are dropped, not
// overwritten, per the uniqueness-key invariant).
func (db *DB) InsertSpot(entries []NewEntry) ([]NewEntry, error) {
	return db.insertBatch(KindSpot, entries)
}

// InsertFuture idempotently inserts dated-future entries.
func (db *DB) InsertFuture(entries []NewEntry) ([]NewEntry, error) {
	return db.insertBatch(KindFuture, entries)
}

// InsertPerp idempotently inserts perpetual entries.
func (db *DB) InsertPerp(entries []NewEntry) ([]NewEntry, error) {
	return db.insertBatch(KindPerp, entries)
}

func (db *DB) insertBatch(kind EntryKind, entries []NewEntry) ([]NewEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	inserted := make([]NewEntry, 0, len(entries))
	for _, e := range entries {
		var query string
		var args []interface{}
		switch kind {
		case KindFuture:
			query = `
				INSERT INTO future_entries (pair_id, publisher, source, timestamp, expiration_timestamp, price, publisher_signature)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (pair_id, source, timestamp, expiration_timestamp) DO NOTHING
			`
			args = []interface{}{e.PairID, e.Publisher, e.Source, e.Timestamp, e.ExpirationTimestamp, e.Price.FloatString(18), e.PublisherSignature}
		default:
			args = []interface{}{e.PairID, e.Publisher, e.Source, e.Timestamp, e.Price.FloatString(18), e.PublisherSignature}
			query = fmt.Sprintf(`
				INSERT INTO %s (pair_id, publisher, source, timestamp, price, publisher_signature)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (pair_id, source, timestamp) DO NOTHING
			`, kind.tableName())
		}

		res, err := db.Exec(query, args...)
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", kind.tableName(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			inserted = append(inserted, e)
		}
	}
	return inserted, nil
}

// MedianPoint is one point in a pair's median time series, suitable for
// OHLC and volatility computations.
type MedianPoint struct {
	Time        time.Time
	MedianPrice *big.Rat
	NumSources  int
}

// MedianEntries returns the ordered median time series for a pair.
func (db *DB) MedianEntries(pairID string, kind EntryKind) ([]MedianPoint, error) {
	rows, err := db.Query(fmt.Sprintf(`
		SELECT timestamp, price
		FROM %s
		WHERE pair_id = $1
		ORDER BY timestamp ASC
	`, kind.tableName()), pairID)
	if err != nil {
		return nil, fmt.Errorf("query median entries: %w", err)
	}
	defer rows.Close()

	byTimestamp := make(map[time.Time][]*big.Rat)
	order := make([]time.Time, 0)
	for rows.Next() {
		var ts time.Time
		var priceStr string
		if err := rows.Scan(&ts, &priceStr); err != nil {
			return nil, err
		}
		price, ok := new(big.Rat).SetString(priceStr)
		if !ok {
			return nil, fmt.Errorf("malformed price %q", priceStr)
		}
		if _, seen := byTimestamp[ts]; !seen {
			order = append(order, ts)
		}
		byTimestamp[ts] = append(byTimestamp[ts], price)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	points := make([]MedianPoint, 0, len(order))
	for _, ts := range order {
		prices := byTimestamp[ts]
		points = append(points, MedianPoint{
			Time:        ts,
			MedianPrice: Median(prices),
			NumSources:  len(prices),
		})
	}
	return points, nil
}

// OnchainComponent is one publisher observation feeding a median.
type OnchainComponent struct {
	Publisher string
	Source    string
	Price     *big.Rat
	Timestamp time.Time
	TxHash    string
}

// MedianEntryWithComponents is a computed median plus its contributing
// observations.
type MedianEntryWithComponents struct {
	PairID         string
	MedianPrice    *big.Rat
	MedianTimestamp time.Time
	Components     []OnchainComponent
}

// CurrentMedianWithComponents returns, for each requested pair, the
// median computed from the freshest publisher window, restricted to one
// observation per publisher.
func (db *DB) CurrentMedianWithComponents(pairIDs []string, kind EntryKind, staleness time.Duration) ([]MedianEntryWithComponents, error) {
	results := make([]MedianEntryWithComponents, 0, len(pairIDs))
	cutoff := "NOW() - $2::interval"
	for _, pairID := range pairIDs {
		rows, err := db.Query(fmt.Sprintf(`
			SELECT DISTINCT ON (publisher) publisher, source, price, timestamp
			FROM %s
			WHERE pair_id = $1 AND timestamp >= %s
			ORDER BY publisher, timestamp DESC
		`, kind.tableName(), cutoff), pairID, staleness.String())
		if err != nil {
			return nil, fmt.Errorf("query current median for %s: %w", pairID, err)
		}

		var components []OnchainComponent
		for rows.Next() {
			var c OnchainComponent
			var priceStr string
			if err := rows.Scan(&c.Publisher, &c.Source, &priceStr, &c.Timestamp); err != nil {
				rows.Close()
				return nil, err
			}
			price, ok := new(big.Rat).SetString(priceStr)
			if !ok {
				rows.Close()
				return nil, fmt.Errorf("malformed price %q", priceStr)
			}
			c.Price = price
			components = append(components, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(components) == 0 {
			continue
		}

		sort.Slice(components, func(i, j int) bool {
			if components[i].Publisher != components[j].Publisher {
				return components[i].Publisher < components[j].Publisher
			}
			return components[i].Source < components[j].Source
		})

		prices := make([]*big.Rat, len(components))
		maxTS := components[0].Timestamp
		for i, c := range components {
			prices[i] = c.Price
			if c.Timestamp.After(maxTS) {
				maxTS = c.Timestamp
			}
		}

		results = append(results, MedianEntryWithComponents{
			PairID:          pairID,
			MedianPrice:     Median(prices),
			MedianTimestamp: maxTS,
			Components:      components,
		})
	}
	return results, nil
}

// ExistingPairs reports, for a candidate set of pair ids, which are
// present in the spot table and which in the perp table.
func (db *DB) ExistingPairs(candidates []string) (spotPresent, perpPresent map[string]bool, err error) {
	spotPresent = make(map[string]bool, len(candidates))
	perpPresent = make(map[string]bool, len(candidates))
	if len(candidates) == 0 {
		return spotPresent, perpPresent, nil
	}

	spotRows, err := db.Query(`SELECT DISTINCT pair_id FROM entries WHERE pair_id = ANY($1)`, pq.Array(candidates))
	if err != nil {
		return nil, nil, fmt.Errorf("query existing spot pairs: %w", err)
	}
	defer spotRows.Close()
	for spotRows.Next() {
		var id string
		if err := spotRows.Scan(&id); err != nil {
			return nil, nil, err
		}
		spotPresent[id] = true
	}

	perpRows, err := db.Query(`SELECT DISTINCT pair_id FROM perp_entries WHERE pair_id = ANY($1)`, pq.Array(candidates))
	if err != nil {
		return nil, nil, fmt.Errorf("query existing perp pairs: %w", err)
	}
	defer perpRows.Close()
	for perpRows.Next() {
		var id string
		if err := perpRows.Scan(&id); err != nil {
			return nil, nil, err
		}
		perpPresent[id] = true
	}
	return spotPresent, perpPresent, nil
}

// Median computes the median of an unordered list of exact-decimal
// prices: odd count takes the middle element, even count averages the
// two middle elements, all in exact rational arithmetic. Input order
// does not affect the result (it is sorted internally).
func Median(prices []*big.Rat) *big.Rat {
	if len(prices) == 0 {
		return new(big.Rat)
	}
	sorted := make([]*big.Rat, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	n := len(sorted)
	if n%2 == 1 {
		return new(big.Rat).Set(sorted[n/2])
	}
	sum := new(big.Rat).Add(sorted[n/2-1], sorted[n/2])
	return sum.Quo(sum, big.NewRat(2, 1))
}
