// Package types provides the domain types shared by the discovery service.
//
// # Listings
//
// Listing is the document stored in the search index. Search never returns the
// whole document; hits are projected to a ListingView:
//
//	view := listing.View()
//	fmt.Println(view.Title, view.Price.Amount, view.Price.Currency)
//
// Moderation is expressed through score tags. A listing tagged Hide or Delete is
// never returned by search, whatever else it matches:
//
//	if listing.IsHidden() {
//	    // excluded by the visibility rules
//	}
//
// # Currencies
//
// Prices carry a CurrencyKey of the form "fiat-XXX" or "token-XXX". The supported
// set and its static fallback USD rates live in a single table in this package:
//
//	for _, key := range types.SupportedCurrencies() {
//	    fmt.Println(key.Kind(), key.Code())
//	}
//
// # Filters
//
// Filter is the loose boundary shape callers send. The query package turns each one
// into a closed clause type and rejects operator and value type combinations it
// does not know with ErrInvalidFilter.
package types
