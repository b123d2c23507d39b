package coins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/cryptotracker/core/internal/cache"
	"github.com/cryptotracker/core/internal/coingecko"
)

type fakeUpstream struct {
	listRows    []coingecko.ListingRow
	listErr     error
	listCalls   int
	detail      *coingecko.DetailPayload
	detailErr   error
	detailCalls int
	chart       *coingecko.ChartPayload
	chartErr    error
	chartCalls  int
	gotDays     string
}

func (f *fakeUpstream) ListMarkets(_ context.Context, page, perPage int) ([]coingecko.ListingRow, error) {
	f.listCalls++
	return f.listRows, f.listErr
}

func (f *fakeUpstream) CoinDetail(_ context.Context, coinID string) (*coingecko.DetailPayload, error) {
	f.detailCalls++
	return f.detail, f.detailErr
}

func (f *fakeUpstream) CoinChart(_ context.Context, coinID, days string) (*coingecko.ChartPayload, error) {
	f.chartCalls++
	f.gotDays = days
	return f.chart, f.chartErr
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func listingRows(n int) []coingecko.ListingRow {
	rows := make([]coingecko.ListingRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, coingecko.ListingRow{
			ID:           fmt.Sprintf("coin-%d", i),
			Symbol:       fmt.Sprintf("c%d", i),
			Name:         fmt.Sprintf("Coin %d", i),
			CurrentPrice: floatPtr(float64(100 + i)),
		})
	}
	return rows
}

func testDetail() *coingecko.DetailPayload {
	return &coingecko.DetailPayload{
		ID:          "bitcoin",
		Symbol:      "btc",
		Name:        "Bitcoin",
		Description: map[string]string{"en": "Digital gold"},
		Image:       coingecko.ImagePayload{Thumb: "thumb.png", Small: "small.png", Large: "large.png"},
		MarketData: &coingecko.MarketData{
			CurrentPrice:             map[string]float64{"usd": 42000, "eur": 39000},
			MarketCap:                map[string]float64{"usd": 800e9},
			MarketCapRank:            intPtr(1),
			TotalVolume:              map[string]float64{"usd": 30e9},
			High24h:                  map[string]float64{"usd": 43000},
			Low24h:                   map[string]float64{"usd": 41000},
			PriceChange24h:           floatPtr(-120.5),
			PriceChangePercentage24h: floatPtr(-0.28),
			CirculatingSupply:        floatPtr(19_600_000),
			ATH:                      map[string]float64{"usd": 69000},
			ATHDate:                  map[string]string{"usd": "2021-11-10T14:24:11.849Z"},
		},
		Links: &coingecko.LinksPayload{
			Homepage:         []string{"https://bitcoin.org", "https://example.com"},
			BlockchainSite:   []string{"https://blockchair.com/bitcoin"},
			OfficialForumURL: nil,
		},
	}
}

func TestList_CacheRoundTrip(t *testing.T) {
	up := &fakeUpstream{listRows: listingRows(20)}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())
	ctx := context.Background()

	first, err := svc.List(ctx, ListRequest{Page: 1, PerPage: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if first.Cached {
		t.Error("first request must be cached=false")
	}

	second, err := svc.List(ctx, ListRequest{Page: 1, PerPage: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !second.Cached {
		t.Error("second request within TTL must be cached=true")
	}
	if up.listCalls != 1 {
		t.Errorf("upstream called %d times, want 1", up.listCalls)
	}

	// Identical except for the cached flag.
	second.Cached = first.Cached
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("payloads differ beyond the cached flag:\n%s\n%s", a, b)
	}
}

func TestList_TTLExpiryRefetches(t *testing.T) {
	up := &fakeUpstream{listRows: listingRows(5)}
	ttl := DefaultTTLConfig()
	ttl.List = 30 * time.Millisecond
	svc := New(up, cache.NewMemory(), ttl)
	ctx := context.Background()

	if _, err := svc.List(ctx, ListRequest{Page: 1, PerPage: 5}); err != nil {
		t.Fatalf("List: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	page, err := svc.List(ctx, ListRequest{Page: 1, PerPage: 5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Cached {
		t.Error("request after TTL expiry must be cached=false")
	}
	if up.listCalls != 2 {
		t.Errorf("upstream called %d times, want 2", up.listCalls)
	}
}

func TestList_PaginationLinks(t *testing.T) {
	tests := []struct {
		name         string
		page         int
		perPage      int
		rows         int
		search       string
		wantNext     string
		wantPrevious string
	}{
		{
			name: "full first page", page: 1, perPage: 20, rows: 20,
			wantNext: "/api/coins?page=2&per_page=20",
		},
		{
			name: "short page has no next", page: 3, perPage: 20, rows: 7,
			wantPrevious: "/api/coins?page=2&per_page=20",
		},
		{
			name: "middle page has both", page: 2, perPage: 10, rows: 10,
			wantNext: "/api/coins?page=3&per_page=10", wantPrevious: "/api/coins?page=1&per_page=10",
		},
		{
			name: "search is carried in links", page: 1, perPage: 20, rows: 20, search: "bit",
			wantNext: "/api/coins?page=2&per_page=20&search=bit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{listRows: listingRows(tt.rows)}
			svc := New(up, cache.NewMemory(), DefaultTTLConfig())

			page, err := svc.List(context.Background(), ListRequest{
				Page: tt.page, PerPage: tt.perPage, Search: tt.search,
			})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.Count != 100 {
				t.Errorf("count = %d, want symbolic 100", page.Count)
			}
			checkLink(t, "next", page.Next, tt.wantNext)
			checkLink(t, "previous", page.Previous, tt.wantPrevious)
		})
	}
}

func checkLink(t *testing.T, name string, got *string, want string) {
	t.Helper()
	if want == "" {
		if got != nil {
			t.Errorf("%s = %q, want null", name, *got)
		}
		return
	}
	if got == nil {
		t.Errorf("%s = null, want %q", name, want)
		return
	}
	if *got != want {
		t.Errorf("%s = %q, want %q", name, *got, want)
	}
}

func TestList_ParameterNormalization(t *testing.T) {
	up := &fakeUpstream{listRows: listingRows(1)}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	// Page 0 and an oversized per_page are normalized, not rejected.
	page, err := svc.List(context.Background(), ListRequest{Page: 0, PerPage: 5000})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Previous != nil {
		t.Error("normalized page 1 must have previous=null")
	}
}

func TestList_ExplicitZeroPerPageClampsToOne(t *testing.T) {
	up := &fakeUpstream{listRows: listingRows(1)}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	// An explicit per_page=0 clamps to 1; it does not fall back to the
	// default page size.
	page, err := svc.List(context.Background(), ListRequest{Page: 1, PerPage: 0})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	checkLink(t, "next", page.Next, "/api/coins?page=2&per_page=1")
}

func TestList_UpstreamErrorPropagates(t *testing.T) {
	wantErr := &coingecko.StatusError{Status: 502, Body: "bad gateway"}
	up := &fakeUpstream{listErr: wantErr}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	_, err := svc.List(context.Background(), ListRequest{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error to propagate, got: %v", err)
	}
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		t.Error("listing failures must not be masked as UpstreamError")
	}
}

func TestDetail_FieldDerivation(t *testing.T) {
	up := &fakeUpstream{detail: testDetail()}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	d, err := svc.Detail(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}

	if d.CurrentPrice == nil || *d.CurrentPrice != 42000 {
		t.Errorf("current_price = %v, want usd value 42000", d.CurrentPrice)
	}
	if d.Description != "Digital gold" {
		t.Errorf("description = %q", d.Description)
	}
	if d.Image != "large.png" {
		t.Errorf("image = %q, want the large variant", d.Image)
	}
	if d.MarketCapRank == nil || *d.MarketCapRank != 1 {
		t.Errorf("market_cap_rank = %v, want 1", d.MarketCapRank)
	}
	// No price_change_24h_in_currency: falls back to the plain field.
	if d.PriceChange24h == nil || *d.PriceChange24h != -120.5 {
		t.Errorf("price_change_24h = %v, want fallback -120.5", d.PriceChange24h)
	}
	if d.ATH == nil || *d.ATH != 69000 {
		t.Errorf("ath = %v, want 69000", d.ATH)
	}
	if d.ATHDate == nil || *d.ATHDate != "2021-11-10T14:24:11.849Z" {
		t.Errorf("ath_date = %v", d.ATHDate)
	}
	if d.Links.Homepage != "https://bitcoin.org" {
		t.Errorf("homepage = %q, want first entry", d.Links.Homepage)
	}
	if d.Links.BlockchainSite != "https://blockchair.com/bitcoin" {
		t.Errorf("blockchain_site = %q", d.Links.BlockchainSite)
	}
	if d.Links.OfficialForum != nil {
		t.Errorf("official_forum = %v, want null for empty list", *d.Links.OfficialForum)
	}
	// total_supply is absent from market_data: stays null.
	if d.TotalSupply != nil {
		t.Errorf("total_supply = %v, want null", *d.TotalSupply)
	}
}

func TestDetail_PriceChangePrefersCurrencyKeyed(t *testing.T) {
	payload := testDetail()
	payload.MarketData.PriceChange24hInCurrency = map[string]float64{"usd": -99.25}
	up := &fakeUpstream{detail: payload}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	d, err := svc.Detail(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.PriceChange24h == nil || *d.PriceChange24h != -99.25 {
		t.Errorf("price_change_24h = %v, want currency-keyed -99.25", d.PriceChange24h)
	}
}

func TestDetail_ImageFallbackOrder(t *testing.T) {
	payload := testDetail()
	payload.Image = coingecko.ImagePayload{Thumb: "thumb.png", Small: "small.png"}
	up := &fakeUpstream{detail: payload}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	d, err := svc.Detail(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.Image != "small.png" {
		t.Errorf("image = %q, want small fallback", d.Image)
	}
}

func TestDetail_CacheRoundTrip(t *testing.T) {
	up := &fakeUpstream{detail: testDetail()}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())
	ctx := context.Background()

	first, err := svc.Detail(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	second, err := svc.Detail(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v/%v, want false/true", first.Cached, second.Cached)
	}
	if up.detailCalls != 1 {
		t.Errorf("upstream called %d times, want 1", up.detailCalls)
	}
	second.Cached = false
	if !reflect.DeepEqual(first, second) {
		t.Error("payloads differ beyond the cached flag")
	}
}

func TestDetail_UpstreamFailureIsNotFound(t *testing.T) {
	up := &fakeUpstream{detailErr: &coingecko.StatusError{Status: 404, Body: "not found"}}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	_, err := svc.Detail(context.Background(), "doge-classic")
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected *UpstreamError, got: %v", err)
	}
	want := "coin 'doge-classic' not found or upstream error"
	if upstreamErr.Error() != want {
		t.Errorf("message = %q, want %q", upstreamErr.Error(), want)
	}
}

func TestChart_DaysCoercion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"7", "7"},
		{"max", "max"},
		{"MAX", "max"},
		{"365", "365"},
		{"999", "7"},
		{"yesterday", "7"},
		{"", "7"},
		{"-1", "7"},
	}
	for _, tt := range tests {
		if got := NormalizeDays(tt.in); got != tt.want {
			t.Errorf("NormalizeDays(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChart_InvalidDaysSharesCacheWithSeven(t *testing.T) {
	up := &fakeUpstream{chart: &coingecko.ChartPayload{Prices: [][2]float64{{1700000000000, 42000}}}}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())
	ctx := context.Background()

	first, err := svc.Chart(ctx, "bitcoin", "7")
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if first.Cached {
		t.Error("first request must be cached=false")
	}
	if up.gotDays != "7" {
		t.Errorf("upstream days = %q, want 7", up.gotDays)
	}

	// days=999 is coerced to 7 and hits the same cache entry.
	second, err := svc.Chart(ctx, "bitcoin", "999")
	if err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if !second.Cached {
		t.Error("coerced request must hit the cache")
	}
	if up.chartCalls != 1 {
		t.Errorf("upstream called %d times, want 1", up.chartCalls)
	}
	if len(second.Prices) != 1 || second.Prices[0][1] != 42000 {
		t.Errorf("unexpected prices: %v", second.Prices)
	}
}

func TestChart_UpstreamFailureIsNotFound(t *testing.T) {
	up := &fakeUpstream{chartErr: errors.New("connection reset")}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	_, err := svc.Chart(context.Background(), "bitcoin", "7")
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected *UpstreamError, got: %v", err)
	}
}

func TestCurrentPrice(t *testing.T) {
	up := &fakeUpstream{detail: testDetail()}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	price, err := svc.CurrentPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price == nil || *price != 42000 {
		t.Errorf("price = %v, want 42000", price)
	}
}

func TestCurrentPrice_SharesDetailCache(t *testing.T) {
	up := &fakeUpstream{detail: testDetail()}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())
	ctx := context.Background()

	if _, err := svc.CurrentPrice(ctx, "bitcoin"); err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	price, err := svc.CurrentPrice(ctx, "bitcoin")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	// The second read serves from the detail cache within its TTL, so a
	// fired price may lag the market by up to that window.
	if up.detailCalls != 1 {
		t.Errorf("upstream called %d times, want 1", up.detailCalls)
	}
	if price == nil || *price != 42000 {
		t.Errorf("price = %v, want 42000", price)
	}
}

func TestCurrentPrice_NoUSDQuote(t *testing.T) {
	payload := testDetail()
	payload.MarketData.CurrentPrice = map[string]float64{"eur": 39000}
	up := &fakeUpstream{detail: payload}
	svc := New(up, cache.NewMemory(), DefaultTTLConfig())

	price, err := svc.CurrentPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if price != nil {
		t.Errorf("price = %v, want nil when usd is absent", *price)
	}
}
