package fetcher

import (
	"context"

	"ves-rate-watch/internal/rates"
)

// OfficialRateFetcher retrieves the central bank's published rate pair.
type OfficialRateFetcher interface {
	FetchOfficial(ctx context.Context) (rates.OfficialQuote, error)
}

// PeerRateFetcher retrieves one side of a peer-to-peer market's listings.
type PeerRateFetcher interface {
	Name() string
	FetchSide(ctx context.Context, side rates.Side) ([]rates.Quote, error)
}
