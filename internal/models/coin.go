// Package models defines the core domain entities: market listings, coin
// details, price series, alerts, and notifications.
package models

// MarketListing is one row of the coin listing, normalized from the
// upstream markets endpoint. Numeric fields are pointers so that keys
// absent upstream stay null rather than collapsing to zero.
type MarketListing struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	TotalVolume              *float64 `json:"total_volume"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
}

// ListingPage is the paged listing payload. Count is symbolic: the
// upstream markets endpoint does not report a total, so Count must not
// be treated as accurate. Next is derived from whether the returned
// page was full.
type ListingPage struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []MarketListing `json:"results"`
	Cached   bool            `json:"cached"`
	CachedAt string          `json:"cached_at"`
}

// CoinLinks holds the first entry of each upstream link list. Homepage
// and BlockchainSite default to the empty string, OfficialForum to null.
type CoinLinks struct {
	Homepage       string  `json:"homepage"`
	BlockchainSite string  `json:"blockchain_site"`
	OfficialForum  *string `json:"official_forum"`
}

// CoinDetail is the flattened single-coin payload. All monetary figures
// are in USD. Immutable once constructed for a given fetch.
type CoinDetail struct {
	ID                       string    `json:"id"`
	Symbol                   string    `json:"symbol"`
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	Image                    string    `json:"image"`
	CurrentPrice             *float64  `json:"current_price"`
	MarketCap                *float64  `json:"market_cap"`
	MarketCapRank            *int      `json:"market_cap_rank"`
	TotalVolume              *float64  `json:"total_volume"`
	High24h                  *float64  `json:"high_24h"`
	Low24h                   *float64  `json:"low_24h"`
	PriceChange24h           *float64  `json:"price_change_24h"`
	PriceChangePercentage24h *float64  `json:"price_change_percentage_24h"`
	CirculatingSupply        *float64  `json:"circulating_supply"`
	TotalSupply              *float64  `json:"total_supply"`
	MaxSupply                *float64  `json:"max_supply"`
	ATH                      *float64  `json:"ath"`
	ATHDate                  *string   `json:"ath_date"`
	Links                    CoinLinks `json:"links"`
	Cached                   bool      `json:"cached"`
	CachedAt                 string    `json:"cached_at"`
}

// PricePoint is one (timestamp, price) pair of a historical series.
// The wire form is a two-element array [timestamp_ms, price].
type PricePoint [2]float64

// ChartData is the historical price series payload for one coin and
// time window. The series is ordered and never mutated after
// construction.
type ChartData struct {
	Prices   []PricePoint `json:"prices"`
	Cached   bool         `json:"cached"`
	CachedAt string       `json:"cached_at"`
}
