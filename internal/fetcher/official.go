package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

const officialSourceName = "bcv"

// OfficialOptions parameterise the central bank page fetcher.
type OfficialOptions struct {
	URL          string
	USDSelector  string
	EURSelector  string
	DateSelector string
	DateAttr     string
	Timeout      time.Duration
	UserAgent    string
}

// Official scrapes the published USD/EUR pair and its as-of date from the
// central bank's HTML page.
type Official struct {
	opts   OfficialOptions
	logger zerolog.Logger
	client *http.Client
}

// NewOfficial builds a new official rate fetcher.
func NewOfficial(opts OfficialOptions, logger zerolog.Logger) *Official {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if opts.USDSelector == "" {
		opts.USDSelector = "#dolar strong"
	}
	if opts.EURSelector == "" {
		opts.EURSelector = "#euro strong"
	}
	if opts.DateSelector == "" {
		opts.DateSelector = "span.date-display-single"
	}
	if opts.DateAttr == "" {
		opts.DateAttr = "content"
	}

	return &Official{
		opts:   opts,
		logger: logger.With().Str("component", "official_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchOfficial retrieves the official pair. A missing or malformed field is
// a typed failure, never a zero rate.
func (o *Official) FetchOfficial(ctx context.Context) (rates.OfficialQuote, error) {
	if o.opts.URL == "" {
		return rates.OfficialQuote{}, errors.New("official url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.URL, nil)
	if err != nil {
		return rates.OfficialQuote{}, err
	}
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return rates.OfficialQuote{}, classifyTransportError(officialSourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rates.OfficialQuote{}, rates.NewFetchError(officialSourceName, rates.FailureUnreachable,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return rates.OfficialQuote{}, rates.NewFetchError(officialSourceName, rates.FailureMalformed, err)
	}

	usd, err := extractPrice(doc, o.opts.USDSelector)
	if err != nil {
		return rates.OfficialQuote{}, rates.NewFetchError(officialSourceName, rates.FailureMalformed, err)
	}
	eur, err := extractPrice(doc, o.opts.EURSelector)
	if err != nil {
		return rates.OfficialQuote{}, rates.NewFetchError(officialSourceName, rates.FailureMalformed, err)
	}
	asOf, err := extractDate(doc, o.opts.DateSelector, o.opts.DateAttr)
	if err != nil {
		return rates.OfficialQuote{}, rates.NewFetchError(officialSourceName, rates.FailureMalformed, err)
	}

	o.logger.Debug().Str("usd", usd.String()).Str("eur", eur.String()).
		Time("as_of", asOf).Msg("official pair extracted")

	return rates.OfficialQuote{USD: usd, EUR: eur, AsOf: asOf}, nil
}

func extractPrice(doc *goquery.Document, selector string) (decimal.Decimal, error) {
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return decimal.Decimal{}, fmt.Errorf("selector %q matched nothing", selector)
	}
	return ParseLocalizedDecimal(node.Text())
}

func extractDate(doc *goquery.Document, selector, attr string) (time.Time, error) {
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return time.Time{}, fmt.Errorf("selector %q matched nothing", selector)
	}

	raw, ok := node.Attr(attr)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = strings.TrimSpace(node.Text())
	}
	if raw == "" {
		return time.Time{}, errors.New("as-of date missing")
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable as-of date %q", raw)
}

// ParseLocalizedDecimal parses a decimal-comma price, e.g. "47,15" → 47.15.
// Thousand separators ("1.234,56") are stripped first.
func ParseLocalizedDecimal(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.Decimal{}, errors.New("empty numeric field")
	}
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return value, nil
}

func classifyTransportError(source string, err error) *rates.FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return rates.NewFetchError(source, rates.FailureTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return rates.NewFetchError(source, rates.FailureTimeout, err)
	}
	return rates.NewFetchError(source, rates.FailureUnreachable, err)
}

var _ OfficialRateFetcher = (*Official)(nil)
