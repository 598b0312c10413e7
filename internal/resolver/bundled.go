package resolver

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

//go:embed data/history.json
var bundledHistory []byte

type bundledRecord struct {
	Date string `json:"date"`
	USD  string `json:"usd"`
	EUR  string `json:"eur"`
}

// loadBundled parses the dataset shipped with the binary. It backstops the
// remote store when no record exists for a date. Dates are calendar dates in
// the business timezone; parsing them in tz keeps them comparable with the
// day-keyed remote records.
func loadBundled(tz *time.Location) (map[string]rates.HistoricalRecord, error) {
	var raw []bundledRecord
	if err := json.Unmarshal(bundledHistory, &raw); err != nil {
		return nil, fmt.Errorf("parse bundled history: %w", err)
	}

	out := make(map[string]rates.HistoricalRecord, len(raw))
	for _, r := range raw {
		date, err := time.ParseInLocation("2006-01-02", r.Date, tz)
		if err != nil {
			return nil, fmt.Errorf("bundled history date %q: %w", r.Date, err)
		}
		usd, err := decimal.NewFromString(r.USD)
		if err != nil {
			return nil, fmt.Errorf("bundled history usd %q: %w", r.USD, err)
		}
		eur, err := decimal.NewFromString(r.EUR)
		if err != nil {
			return nil, fmt.Errorf("bundled history eur %q: %w", r.EUR, err)
		}
		out[r.Date] = rates.HistoricalRecord{Date: date, OfficialUSD: usd, OfficialEUR: eur}
	}
	return out, nil
}
