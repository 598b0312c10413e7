package rates

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Side distinguishes the two halves of a peer market quote.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Quote is a single upstream observation. Quotes live only for the duration
// of one aggregation pass.
type Quote struct {
	Source     string
	Side       Side
	Price      decimal.Decimal
	ObservedAt time.Time
}

// OfficialQuote is the paired rate published by the central bank together
// with its nominal as-of date.
type OfficialQuote struct {
	USD  decimal.Decimal
	EUR  decimal.Decimal
	AsOf time.Time
}

// SourceAverage is the per-source contribution to the blended price.
type SourceAverage struct {
	Source      string          `json:"source"`
	Buy         decimal.Decimal `json:"buy"`
	Sell        decimal.Decimal `json:"sell"`
	BuySamples  int             `json:"buy_samples"`
	SellSamples int             `json:"sell_samples"`
}

// NextPeriodRate is an official rate already published for a future date.
type NextPeriodRate struct {
	USD           decimal.Decimal `json:"usd"`
	EUR           decimal.Decimal `json:"eur"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// RateSnapshot is the authoritative current state served to consumers.
// It is built wholesale on every successful aggregation, never patched.
type RateSnapshot struct {
	OfficialUSD      decimal.Decimal `json:"official_usd"`
	OfficialEUR      decimal.Decimal `json:"official_eur"`
	OfficialDate     time.Time       `json:"official_date"`
	BlendedPeerPrice decimal.Decimal `json:"blended_peer_price"`
	PerSource        []SourceAverage `json:"per_source"`
	USDDayChangePct  decimal.Decimal `json:"usd_day_change_pct"`
	EURDayChangePct  decimal.Decimal `json:"eur_day_change_pct"`
	NextPeriod       *NextPeriodRate `json:"next_period,omitempty"`
	LastUpdatedLabel string          `json:"last_updated_label"`
}

// HistoricalRecord is one official rate for one calendar date. Immutable
// once persisted; at most one record per date.
type HistoricalRecord struct {
	Date        time.Time       `json:"date"`
	OfficialUSD decimal.Decimal `json:"usd"`
	OfficialEUR decimal.Decimal `json:"eur"`
}

// PeerObservation is one persisted blended peer price sample.
type PeerObservation struct {
	Price           decimal.Decimal
	RecordedAt      time.Time
	SourceBreakdown json.RawMessage
}

// PeerDailyAverage groups peer observations by business-timezone calendar
// date. Peer averages are a separate series; they are never blended with
// official records.
type PeerDailyAverage struct {
	Date         time.Time       `json:"date"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// HourlyPoint is one hour bucket of peer prices within a single day.
type HourlyPoint struct {
	Hour  int             `json:"hour"`
	Price decimal.Decimal `json:"price"`
}

// ConnectivityState is the minimal health view exposed to consumers.
type ConnectivityState struct {
	Offline           bool
	LastRefreshFailed bool
	LastUpdateLabel   string
}
