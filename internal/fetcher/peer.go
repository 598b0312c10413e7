package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

// PeerOptions parameterise one peer market fetcher.
type PeerOptions struct {
	Name        string
	URL         string
	Method      string
	BuyPayload  string
	SellPayload string
	Timeout     time.Duration
	UserAgent   string
}

// Peer fetches informal market listings from one peer-to-peer venue. Each
// venue exposes a JSON endpoint returning a list of listings with a price
// field; shapes vary slightly, see decodeListings.
type Peer struct {
	opts   PeerOptions
	logger zerolog.Logger
	client *http.Client
	clock  func() time.Time
}

// NewPeer constructs a peer market fetcher.
func NewPeer(opts PeerOptions, logger zerolog.Logger) *Peer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	return &Peer{
		opts:   opts,
		logger: logger.With().Str("component", "peer_fetcher").Str("source", opts.Name).Logger(),
		client: &http.Client{Timeout: timeout},
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the venue in breakdowns and logs.
func (p *Peer) Name() string { return p.opts.Name }

// FetchSide retrieves one side's listings as quotes.
func (p *Peer) FetchSide(ctx context.Context, side rates.Side) ([]rates.Quote, error) {
	if p.opts.URL == "" {
		return nil, fmt.Errorf("peer %s: url not configured", p.opts.Name)
	}

	var body io.Reader
	payload := p.opts.BuyPayload
	if side == rates.SideSell {
		payload = p.opts.SellPayload
	}
	if strings.EqualFold(p.opts.Method, http.MethodPost) {
		body = bytes.NewReader([]byte(payload))
	}

	url := p.opts.URL
	if body == nil && payload != "" {
		// GET venues encode the side as a query string fragment.
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = url + sep + payload
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(p.opts.Method), url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.opts.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rates.NewFetchError(p.opts.Name, rates.FailureUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rates.NewFetchError(p.opts.Name, rates.FailureUnreachable,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	prices, err := decodeListings(raw)
	if err != nil {
		return nil, rates.NewFetchError(p.opts.Name, rates.FailureMalformed, err)
	}
	if len(prices) == 0 {
		return nil, rates.NewFetchError(p.opts.Name, rates.FailureEmpty, nil)
	}

	observed := p.clock()
	quotes := make([]rates.Quote, 0, len(prices))
	for _, price := range prices {
		quotes = append(quotes, rates.Quote{
			Source:     p.opts.Name,
			Side:       side,
			Price:      price,
			ObservedAt: observed,
		})
	}

	p.logger.Debug().Str("side", string(side)).Int("listings", len(quotes)).Msg("peer listings fetched")
	return quotes, nil
}

type listing struct {
	Price json.RawMessage `json:"price"`
	Adv   *struct {
		Price json.RawMessage `json:"price"`
	} `json:"adv"`
}

type listingEnvelope struct {
	Data     []listing `json:"data"`
	Listings []listing `json:"listings"`
}

// decodeListings accepts either a bare JSON array of listings or an object
// wrapping one under "data"/"listings". Prices arrive as JSON strings or
// numbers depending on the venue.
func decodeListings(raw []byte) ([]decimal.Decimal, error) {
	var items []listing
	if err := json.Unmarshal(raw, &items); err != nil {
		var envelope listingEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("unrecognised listing payload: %w", err)
		}
		items = envelope.Data
		if len(items) == 0 {
			items = envelope.Listings
		}
	}

	prices := make([]decimal.Decimal, 0, len(items))
	for i, item := range items {
		rawPrice := item.Price
		if len(rawPrice) == 0 && item.Adv != nil {
			rawPrice = item.Adv.Price
		}
		if len(rawPrice) == 0 {
			return nil, fmt.Errorf("listing %d has no price field", i)
		}

		text := strings.Trim(string(rawPrice), `"`)
		price, err := decimal.NewFromString(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("listing %d price %q: %w", i, text, err)
		}
		prices = append(prices, price)
	}
	return prices, nil
}

var _ PeerRateFetcher = (*Peer)(nil)
