package store

import (
	"database/sql"
	"fmt"
)

// Publisher mirrors the publisher record used for auth.
type Publisher struct {
	Name            string
	Active          bool
	ActiveKeyHex    string
	AccountAddrHex  string
}

// PublisherByName looks up a publisher record; ok is false when no such
// publisher is registered.
func (db *DB) PublisherByName(name string) (Publisher, bool, error) {
	var p Publisher
	err := db.QueryRow(`
		SELECT name, active, active_key, account_address FROM publishers WHERE name = $1
	`, name).Scan(&p.Name, &p.Active, &p.ActiveKeyHex, &p.AccountAddrHex)
	if err == sql.ErrNoRows {
		return Publisher{}, false, nil
	}
	if err != nil {
		return Publisher{}, false, fmt.Errorf("query publisher %s: %w", name, err)
	}
	return p, true, nil
}

// CurrencyDecimals loads the currency -> decimals map used by C1.
func (db *DB) CurrencyDecimals() (map[string]int, error) {
	rows, err := db.Query(`SELECT ticker, decimals FROM currencies`)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var ticker string
		var decimals int
		if err := rows.Scan(&ticker, &decimals); err != nil {
			return nil, err
		}
		out[ticker] = decimals
	}
	return out, rows.Err()
}
