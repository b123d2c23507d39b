// Package coins implements the read-through cache orchestration for the
// three market-data resource shapes: paged listing, coin detail, and
// historical price chart.
package coins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cryptotracker/core/internal/cache"
	"github.com/cryptotracker/core/internal/coingecko"
	"github.com/cryptotracker/core/internal/logger"
	"github.com/cryptotracker/core/internal/models"
)

// Cache namespaces.
const (
	nsList   = "coins:list"
	nsDetail = "coins:detail"
	nsChart  = "coins:chart"
)

// DefaultPerPage is the listing page size when the caller does not set one.
const DefaultPerPage = 20

// MaxPerPage caps the externally exposed listing page size.
const MaxPerPage = 100

// allowedDays is the set of accepted chart windows. Anything else is
// silently coerced to "7".
var allowedDays = map[string]bool{
	"1": true, "7": true, "30": true, "90": true, "365": true, "max": true,
}

// NormalizeDays lower-cases and validates a chart window value.
func NormalizeDays(days string) string {
	days = strings.ToLower(strings.TrimSpace(days))
	if !allowedDays[days] {
		return "7"
	}
	return days
}

// UpstreamError reports that a coin could not be resolved upstream,
// either because it does not exist or because the upstream call failed.
// Callers surface it as a not-found condition.
type UpstreamError struct {
	CoinID string
	cause  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("coin '%s' not found or upstream error", e.CoinID)
}

func (e *UpstreamError) Unwrap() error { return e.cause }

// Upstream is the market-data client port.
type Upstream interface {
	ListMarkets(ctx context.Context, page, perPage int) ([]coingecko.ListingRow, error)
	CoinDetail(ctx context.Context, coinID string) (*coingecko.DetailPayload, error)
	CoinChart(ctx context.Context, coinID, days string) (*coingecko.ChartPayload, error)
}

// TTLConfig holds the per-resource cache TTLs.
type TTLConfig struct {
	List   time.Duration
	Detail time.Duration
	Chart  time.Duration
}

// DefaultTTLConfig returns the reference TTLs.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		List:   120 * time.Second,
		Detail: 300 * time.Second,
		Chart:  300 * time.Second,
	}
}

// Service is the read-through orchestrator. Cache and client are
// injected so tests can substitute fakes.
type Service struct {
	upstream Upstream
	store    cache.Store
	ttl      TTLConfig
}

// New creates a coins service.
func New(upstream Upstream, store cache.Store, ttl TTLConfig) *Service {
	return &Service{upstream: upstream, store: store, ttl: ttl}
}

// ListRequest carries the listing parameters. PerPage is clamped to
// [1, MaxPerPage]; callers pass DefaultPerPage when the parameter was
// absent. Search is accepted and part of the cache key and page links,
// but not applied to the upstream filter: the markets endpoint has no
// full-text search.
type ListRequest struct {
	Page     int
	PerPage  int
	Search   string
	BasePath string // for next/previous links; defaults to /api/coins
}

// List serves the paged listing, cache first. Upstream failures
// propagate to the caller.
func (s *Service) List(ctx context.Context, req ListRequest) (*models.ListingPage, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	perPage := req.PerPage
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	search := strings.TrimSpace(req.Search)
	basePath := req.BasePath
	if basePath == "" {
		basePath = "/api/coins"
	}
	parts := []string{strconv.Itoa(page), strconv.Itoa(perPage), search}

	if b, ok := s.store.Get(ctx, nsList, parts...); ok {
		var cached models.ListingPage
		if err := json.Unmarshal(b, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
		logger.Warn("Discarding undecodable cached listing for page=%d per_page=%d", page, perPage)
	}

	rows, err := s.upstream.ListMarkets(ctx, page, perPage)
	if err != nil {
		return nil, err
	}

	results := make([]models.MarketListing, 0, len(rows))
	for _, r := range rows {
		results = append(results, models.MarketListing{
			ID:                       r.ID,
			Symbol:                   r.Symbol,
			Name:                     r.Name,
			Image:                    r.Image,
			CurrentPrice:             r.CurrentPrice,
			PriceChange24h:           r.PriceChange24h,
			PriceChangePercentage24h: r.PriceChangePercentage24h,
			MarketCap:                r.MarketCap,
			MarketCapRank:            r.MarketCapRank,
			TotalVolume:              r.TotalVolume,
			High24h:                  r.High24h,
			Low24h:                   r.Low24h,
		})
	}

	// The upstream does not report a total, so Count stays symbolic and
	// the page links derive from whether this page came back full.
	payload := models.ListingPage{
		Count:    100,
		Results:  results,
		Cached:   false,
		CachedAt: cache.NowISO(),
	}
	if len(rows) >= perPage {
		payload.Next = pageURL(basePath, page+1, perPage, search)
	}
	if page > 1 {
		payload.Previous = pageURL(basePath, page-1, perPage, search)
	}

	s.populate(ctx, nsList, payload, s.ttl.List, parts...)
	return &payload, nil
}

// Detail serves the flattened coin detail, cache first. Any upstream
// failure is reported as *UpstreamError.
func (s *Service) Detail(ctx context.Context, coinID string) (*models.CoinDetail, error) {
	if b, ok := s.store.Get(ctx, nsDetail, coinID); ok {
		var cached models.CoinDetail
		if err := json.Unmarshal(b, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
		logger.Warn("Discarding undecodable cached detail for %s", coinID)
	}

	raw, err := s.upstream.CoinDetail(ctx, coinID)
	if err != nil {
		logger.Warn("Coin detail fetch failed for %s: %v", coinID, err)
		return nil, &UpstreamError{CoinID: coinID, cause: err}
	}

	detail := normalizeDetail(raw)
	detail.CachedAt = cache.NowISO()
	s.populate(ctx, nsDetail, detail, s.ttl.Detail, coinID)
	return &detail, nil
}

// Chart serves the historical price series, cache first. Invalid day
// windows are coerced to "7", never rejected. Any upstream failure is
// reported as *UpstreamError.
func (s *Service) Chart(ctx context.Context, coinID, days string) (*models.ChartData, error) {
	days = NormalizeDays(days)

	if b, ok := s.store.Get(ctx, nsChart, coinID, days); ok {
		var cached models.ChartData
		if err := json.Unmarshal(b, &cached); err == nil {
			cached.Cached = true
			return &cached, nil
		}
		logger.Warn("Discarding undecodable cached chart for %s days=%s", coinID, days)
	}

	raw, err := s.upstream.CoinChart(ctx, coinID, days)
	if err != nil {
		logger.Warn("Coin chart fetch failed for %s days=%s: %v", coinID, days, err)
		return nil, &UpstreamError{CoinID: coinID, cause: err}
	}

	prices := make([]models.PricePoint, 0, len(raw.Prices))
	for _, p := range raw.Prices {
		prices = append(prices, models.PricePoint(p))
	}
	payload := models.ChartData{
		Prices:   prices,
		Cached:   false,
		CachedAt: cache.NowISO(),
	}
	s.populate(ctx, nsChart, payload, s.ttl.Chart, coinID, days)
	return &payload, nil
}

// CurrentPrice resolves the current USD price for a coin through the
// detail path, so alert scans share the detail cache and upstream
// client. The price can therefore be up to the detail TTL stale, which
// delays alert firing by at most that window. A nil price means the
// coin quotes no USD value.
func (s *Service) CurrentPrice(ctx context.Context, coinID string) (*float64, error) {
	detail, err := s.Detail(ctx, coinID)
	if err != nil {
		return nil, err
	}
	return detail.CurrentPrice, nil
}

// populate writes a freshly built payload into the cache. Marshal
// failures are logged and skipped; the response is already built.
func (s *Service) populate(ctx context.Context, ns string, payload any, ttl time.Duration, parts ...string) {
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("Failed to marshal %s payload for cache: %v", ns, err)
		return
	}
	s.store.Set(ctx, ns, b, ttl, parts...)
}

func pageURL(basePath string, page, perPage int, search string) *string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if search != "" {
		q.Set("search", search)
	}
	u := basePath + "?" + q.Encode()
	return &u
}

func normalizeDetail(raw *coingecko.DetailPayload) models.CoinDetail {
	md := raw.MarketData
	if md == nil {
		md = &coingecko.MarketData{}
	}

	rank := md.MarketCapRank
	if rank == nil {
		rank = raw.MarketCapRank
	}

	// Absolute 24h change prefers the USD-keyed field and falls back to
	// the currency-agnostic one.
	priceChange := usdOf(md.PriceChange24hInCurrency)
	if priceChange == nil {
		priceChange = md.PriceChange24h
	}

	detail := models.CoinDetail{
		ID:                       raw.ID,
		Symbol:                   raw.Symbol,
		Name:                     raw.Name,
		Description:              raw.Description["en"],
		Image:                    firstNonEmpty(raw.Image.Large, raw.Image.Small, raw.Image.Thumb),
		CurrentPrice:             usdOf(md.CurrentPrice),
		MarketCap:                usdOf(md.MarketCap),
		MarketCapRank:            rank,
		TotalVolume:              usdOf(md.TotalVolume),
		High24h:                  usdOf(md.High24h),
		Low24h:                   usdOf(md.Low24h),
		PriceChange24h:           priceChange,
		PriceChangePercentage24h: md.PriceChangePercentage24h,
		CirculatingSupply:        md.CirculatingSupply,
		TotalSupply:              md.TotalSupply,
		MaxSupply:                md.MaxSupply,
		ATH:                      usdOf(md.ATH),
	}
	if d, ok := md.ATHDate["usd"]; ok {
		detail.ATHDate = &d
	}
	if raw.Links != nil {
		detail.Links.Homepage = firstOrEmpty(raw.Links.Homepage)
		detail.Links.BlockchainSite = firstOrEmpty(raw.Links.BlockchainSite)
		if len(raw.Links.OfficialForumURL) > 0 {
			forum := raw.Links.OfficialForumURL[0]
			detail.Links.OfficialForum = &forum
		}
	}
	return detail
}

// usdOf extracts the usd key from a currency map. Absent keys yield
// nil, never zero.
func usdOf(m map[string]float64) *float64 {
	if v, ok := m["usd"]; ok {
		return &v
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstOrEmpty(values []string) string {
	if len(values) > 0 {
		return values[0]
	}
	return ""
}
