package types

// PriceStats are aggregate price figures over the filtered listing population
type PriceStats struct {
	MinPrice              float64 `json:"minPrice"`
	MaxPrice              float64 `json:"maxPrice"`
	TotalNumberOfListings int64   `json:"totalNumberOfListings"`
}

// SearchResult is one page of ranked listings plus price statistics
type SearchResult struct {
	Listings []ListingView `json:"listings"`
	Stats    PriceStats    `json:"stats"`
}
